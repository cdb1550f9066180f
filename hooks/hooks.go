package hooks

import (
	"context"
	"sync"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// TrimResult describes a completed context trim for hook consumers.
type TrimResult struct {
	OriginalTokens  int
	TrimmedTokens   int
	MessagesDropped int
	// Tier names the trimming tier that produced the result:
	// "none", "truncate", "aggressive", or "drop".
	Tier string
}

// BeforeTrimHook is called before the context window is trimmed
type BeforeTrimHook func(ctx context.Context, sessionID string, messages []*types.Message) error

// AfterTrimHook is called after the context window has been trimmed
type AfterTrimHook func(ctx context.Context, sessionID string, result *TrimResult) error

// BeforeSummarizeHook is called before a summarization cycle starts
type BeforeSummarizeHook func(ctx context.Context, sessionID string) error

// AfterSummarizeHook is called after a summarization cycle completes
type AfterSummarizeHook func(ctx context.Context, sessionID string, summary string) error

// SessionSavedHook is called after a session body has been persisted
type SessionSavedHook func(ctx context.Context, sessionID string, sizeBytes int) error

// Registry holds all registered hooks
type Registry struct {
	mu              sync.RWMutex
	beforeTrim      []BeforeTrimHook
	afterTrim       []AfterTrimHook
	beforeSummarize []BeforeSummarizeHook
	afterSummarize  []AfterSummarizeHook
	sessionSaved    []SessionSavedHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		beforeTrim:      []BeforeTrimHook{},
		afterTrim:       []AfterTrimHook{},
		beforeSummarize: []BeforeSummarizeHook{},
		afterSummarize:  []AfterSummarizeHook{},
		sessionSaved:    []SessionSavedHook{},
	}
}

// OnBeforeTrim registers a hook to be called before trimming
func (r *Registry) OnBeforeTrim(hook BeforeTrimHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeTrim = append(r.beforeTrim, hook)
}

// OnAfterTrim registers a hook to be called after trimming
func (r *Registry) OnAfterTrim(hook AfterTrimHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterTrim = append(r.afterTrim, hook)
}

// OnBeforeSummarize registers a hook to be called before summarization
func (r *Registry) OnBeforeSummarize(hook BeforeSummarizeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeSummarize = append(r.beforeSummarize, hook)
}

// OnAfterSummarize registers a hook to be called after summarization
func (r *Registry) OnAfterSummarize(hook AfterSummarizeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterSummarize = append(r.afterSummarize, hook)
}

// OnSessionSaved registers a hook to be called after a session save
func (r *Registry) OnSessionSaved(hook SessionSavedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionSaved = append(r.sessionSaved, hook)
}

// TriggerBeforeTrim calls all registered before-trim hooks
func (r *Registry) TriggerBeforeTrim(ctx context.Context, sessionID string, messages []*types.Message) error {
	r.mu.RLock()
	hooks := make([]BeforeTrimHook, len(r.beforeTrim))
	copy(hooks, r.beforeTrim)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, messages); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterTrim calls all registered after-trim hooks
func (r *Registry) TriggerAfterTrim(ctx context.Context, sessionID string, result *TrimResult) error {
	r.mu.RLock()
	hooks := make([]AfterTrimHook, len(r.afterTrim))
	copy(hooks, r.afterTrim)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, result); err != nil {
			return err
		}
	}
	return nil
}

// TriggerBeforeSummarize calls all registered before-summarize hooks
func (r *Registry) TriggerBeforeSummarize(ctx context.Context, sessionID string) error {
	r.mu.RLock()
	hooks := make([]BeforeSummarizeHook, len(r.beforeSummarize))
	copy(hooks, r.beforeSummarize)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterSummarize calls all registered after-summarize hooks
func (r *Registry) TriggerAfterSummarize(ctx context.Context, sessionID string, summary string) error {
	r.mu.RLock()
	hooks := make([]AfterSummarizeHook, len(r.afterSummarize))
	copy(hooks, r.afterSummarize)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, summary); err != nil {
			return err
		}
	}
	return nil
}

// TriggerSessionSaved calls all registered session-saved hooks
func (r *Registry) TriggerSessionSaved(ctx context.Context, sessionID string, sizeBytes int) error {
	r.mu.RLock()
	hooks := make([]SessionSavedHook, len(r.sessionSaved))
	copy(hooks, r.sessionSaved)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, sizeBytes); err != nil {
			return err
		}
	}
	return nil
}
