// Package convomem keeps multi-turn chat conversations inside a model's
// context window and on disk. It combines token estimation, tiered context
// trimming, background summarization, debounced session persistence, and
// session sharing behind a single Engine facade.
//
// Basic usage:
//
//	kv := storage.NewMemoryKV()
//	engine, _ := convomem.New(convomem.Config{
//	    KV:       kv,
//	    TenantID: "tenant-1",
//	    Model:    "claude-sonnet-4-5-20250929",
//	})
//	defer engine.Close(ctx)
//
//	session, _ := engine.NewSession(ctx)
//	engine.AppendMessage(ctx, types.NewUserMessage("hello"))
//	view, budget, _ := engine.PrepareContext(ctx, nil)
//
// The view returned by PrepareContext fits the model's context budget; the
// persisted message log is never rewritten by trimming or summarization.
package convomem
