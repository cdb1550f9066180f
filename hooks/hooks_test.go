package hooks

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
}

func TestOnBeforeTrim(t *testing.T) {
	r := NewRegistry()
	called := false

	r.OnBeforeTrim(func(ctx context.Context, sessionID string, messages []*types.Message) error {
		called = true
		if sessionID != "s1" {
			t.Errorf("got session %q, want s1", sessionID)
		}
		return nil
	})

	if err := r.TriggerBeforeTrim(context.Background(), "s1", nil); err != nil {
		t.Errorf("TriggerBeforeTrim returned error: %v", err)
	}
	if !called {
		t.Error("hook was not called")
	}
}

func TestHooksRunInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		r.OnAfterTrim(func(ctx context.Context, sessionID string, result *TrimResult) error {
			order = append(order, i)
			return nil
		})
	}

	r.TriggerAfterTrim(context.Background(), "s1", &TrimResult{})
	if len(order) != 3 || order[0] != 0 || order[2] != 2 {
		t.Errorf("hooks ran out of order: %v", order)
	}
}

func TestHookErrorStopsChain(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	secondRan := false

	r.OnSessionSaved(func(ctx context.Context, sessionID string, sizeBytes int) error {
		return boom
	})
	r.OnSessionSaved(func(ctx context.Context, sessionID string, sizeBytes int) error {
		secondRan = true
		return nil
	})

	if err := r.TriggerSessionSaved(context.Background(), "s1", 100); !errors.Is(err, boom) {
		t.Fatalf("got %v, want the hook error", err)
	}
	if secondRan {
		t.Error("later hooks should not run after a failure")
	}
}

func TestConcurrentRegistration(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.OnBeforeSummarize(func(ctx context.Context, sessionID string) error { return nil })
			r.TriggerBeforeSummarize(context.Background(), "s1")
		}()
	}
	wg.Wait()

	if err := r.TriggerBeforeSummarize(context.Background(), "s1"); err != nil {
		t.Errorf("trigger after concurrent registration failed: %v", err)
	}
}

func TestLoggingHooks(t *testing.T) {
	var buf strings.Builder
	h := NewLoggingHooks(log.New(&buf, "", 0))

	h.BeforeTrim(context.Background(), "s1", nil)
	h.AfterTrim(context.Background(), "s1", &TrimResult{OriginalTokens: 1000, TrimmedTokens: 400, MessagesDropped: 3, Tier: "drop"})
	h.SessionSaved(context.Background(), "s1", 2048)

	out := buf.String()
	if !strings.Contains(out, "s1") {
		t.Error("log output missing session ID")
	}
	if !strings.Contains(out, "60.0% reduction") {
		t.Errorf("log output missing reduction percentage:\n%s", out)
	}
	if !strings.Contains(out, "2048 bytes") {
		t.Error("log output missing saved size")
	}
}

func TestMetricsHooks(t *testing.T) {
	metrics := make(map[string]float64)
	h := NewMetricsHooks(func(name string, value float64, tags map[string]string) {
		metrics[name] = value
	})

	h.AfterTrim(context.Background(), "s1", &TrimResult{OriginalTokens: 1000, TrimmedTokens: 400, Tier: "drop"})
	h.SessionSaved(context.Background(), "s1", 512)

	if metrics["convomem.trim.original_tokens"] != 1000 {
		t.Errorf("original_tokens = %f", metrics["convomem.trim.original_tokens"])
	}
	if metrics["convomem.trim.reduction_pct"] != 60 {
		t.Errorf("reduction_pct = %f", metrics["convomem.trim.reduction_pct"])
	}
	if metrics["convomem.session.saved_bytes"] != 512 {
		t.Errorf("saved_bytes = %f", metrics["convomem.session.saved_bytes"])
	}
}
