package autosave

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Consensys/ask-o11y-plugin-sub002/storage"
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

const testTenant = "tenant-1"

// instrumentedKV counts body writes and can be made to fail them.
type instrumentedKV struct {
	storage.KV

	mu       sync.Mutex
	bodySets int
	failSets bool
}

func (k *instrumentedKV) Set(ctx context.Context, tenantID, key string, value []byte) error {
	k.mu.Lock()
	if strings.HasPrefix(key, "session:") {
		k.bodySets++
	}
	fail := k.failSets && strings.HasPrefix(key, "session:")
	k.mu.Unlock()

	if fail {
		return errors.New("disk full")
	}
	return k.KV.Set(ctx, tenantID, key, value)
}

func (k *instrumentedKV) sets() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.bodySets
}

func setup(t *testing.T, cfg Config) (*Scheduler, *storage.SessionStore, *instrumentedKV, *storage.Session) {
	t.Helper()
	kv := &instrumentedKV{KV: storage.NewMemoryKV()}
	store := storage.NewSessionStore(kv, storage.Config{})

	session, err := store.Create(context.Background(), testTenant, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	kv.mu.Lock()
	kv.bodySets = 0
	kv.mu.Unlock()

	return NewScheduler(store, cfg), store, kv, session
}

func messagesWith(text string) []*types.Message {
	return []*types.Message{types.NewUserMessage(text)}
}

func TestScheduleDebouncesToLastSnapshot(t *testing.T) {
	scheduler, store, kv, session := setup(t, Config{BodyDelay: 20 * time.Millisecond})
	defer scheduler.Close(context.Background())

	scheduler.Schedule(testTenant, session.ID, messagesWith("first"))
	scheduler.Schedule(testTenant, session.ID, messagesWith("second"))

	if state := scheduler.State(session.ID); state != StateScheduled {
		t.Errorf("got state %s, want %s", state, StateScheduled)
	}

	time.Sleep(80 * time.Millisecond)

	if got := kv.sets(); got != 1 {
		t.Errorf("two rapid schedules produced %d writes, want 1", got)
	}

	loaded, err := store.Get(context.Background(), testTenant, session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Text() != "second" {
		t.Errorf("persisted snapshot is not the last scheduled one: %+v", loaded.Messages)
	}
	if state := scheduler.State(session.ID); state != StateIdle {
		t.Errorf("got state %s after save, want %s", state, StateIdle)
	}
}

func TestSaveNowBypassesDebounce(t *testing.T) {
	scheduler, store, kv, session := setup(t, Config{BodyDelay: time.Hour})
	defer scheduler.Close(context.Background())

	scheduler.Schedule(testTenant, session.ID, messagesWith("pending"))
	if err := scheduler.SaveNow(context.Background(), testTenant, session.ID, messagesWith("now")); err != nil {
		t.Fatalf("save now failed: %v", err)
	}

	loaded, _ := store.Get(context.Background(), testTenant, session.ID)
	if loaded.Messages[0].Text() != "now" {
		t.Errorf("got %q, want the immediate snapshot", loaded.Messages[0].Text())
	}
	if got := kv.sets(); got != 1 {
		t.Errorf("got %d writes, want 1 (pending timer must be cancelled)", got)
	}
}

func TestReadOnlyDropsSaves(t *testing.T) {
	scheduler, _, kv, session := setup(t, Config{BodyDelay: 10 * time.Millisecond, ReadOnly: true})
	defer scheduler.Close(context.Background())

	scheduler.Schedule(testTenant, session.ID, messagesWith("never"))
	scheduler.SaveNow(context.Background(), testTenant, session.ID, messagesWith("never"))

	time.Sleep(50 * time.Millisecond)
	if got := kv.sets(); got != 0 {
		t.Errorf("read-only scheduler wrote %d times", got)
	}
}

func TestCloseFlushesPending(t *testing.T) {
	scheduler, store, _, session := setup(t, Config{BodyDelay: time.Hour})

	scheduler.Schedule(testTenant, session.ID, messagesWith("flushed"))
	if err := scheduler.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	loaded, _ := store.Get(context.Background(), testTenant, session.ID)
	if len(loaded.Messages) != 1 || loaded.Messages[0].Text() != "flushed" {
		t.Error("pending snapshot was not flushed on close")
	}

	if err := scheduler.Schedule(testTenant, session.ID, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestSaveRetriesOnceThenSurfaces(t *testing.T) {
	scheduler, _, kv, session := setup(t, Config{BodyDelay: 10 * time.Millisecond})
	defer scheduler.Close(context.Background())

	kv.mu.Lock()
	kv.failSets = true
	kv.mu.Unlock()

	failed := make(chan error, 1)
	scheduler.OnError = func(sessionID string, err error) { failed <- err }

	scheduler.Schedule(testTenant, session.ID, messagesWith("doomed"))

	select {
	case err := <-failed:
		if err == nil {
			t.Fatal("OnError fired with nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("OnError was never called")
	}

	if got := kv.sets(); got != 2 {
		t.Errorf("got %d write attempts, want 2 (original plus one retry)", got)
	}
}

func TestScheduleIndexRefresh(t *testing.T) {
	scheduler, store, _, session := setup(t, Config{BodyDelay: time.Hour, IndexDelay: 10 * time.Millisecond})
	defer scheduler.Close(context.Background())

	// Write the body behind the scheduler's back, leaving the index stale.
	if err := store.Update(context.Background(), testTenant, session.ID, messagesWith("direct")); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := scheduler.ScheduleIndexRefresh(testTenant, session.ID); err != nil {
		t.Fatalf("schedule refresh failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	entries, _ := store.List(context.Background(), testTenant)
	if len(entries) != 1 || entries[0].MessageCount != 1 {
		t.Errorf("index entry not refreshed: %+v", entries)
	}
}
