package autosave

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Consensys/ask-o11y-plugin-sub002/storage"
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// ErrClosed is returned when scheduling on a closed scheduler.
var ErrClosed = errors.New("autosave: scheduler is closed")

// Default debounce delays.
const (
	DefaultBodyDelay  = 2 * time.Second
	DefaultIndexDelay = 10 * time.Second
)

// State describes a per-session save lifecycle.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// Config holds scheduler configuration.
type Config struct {
	// BodyDelay is the debounce window for full session body writes.
	// Default: 2s
	BodyDelay time.Duration

	// IndexDelay is the debounce window for index-only refreshes.
	// Default: 10s
	IndexDelay time.Duration

	// ReadOnly drops every scheduled save. Used when a session is opened
	// from a shared snapshot.
	ReadOnly bool
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.BodyDelay == 0 {
		c.BodyDelay = DefaultBodyDelay
	}
	if c.IndexDelay == 0 {
		c.IndexDelay = DefaultIndexDelay
	}
}

type pendingSave struct {
	timer    *time.Timer
	tenantID string
	messages []*types.Message
}

// Scheduler debounces writes to a SessionStore. Scheduling a save for a
// session that already has one pending replaces the pending snapshot and
// restarts its timer.
type Scheduler struct {
	cfg   Config
	store *storage.SessionStore

	mu      sync.Mutex
	pending map[string]*pendingSave
	saving  map[string]bool
	index   map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup

	// OnError is invoked when a background save fails after its retry.
	// Optional.
	OnError func(sessionID string, err error)
}

// NewScheduler creates a Scheduler writing through store.
func NewScheduler(store *storage.SessionStore, cfg Config) *Scheduler {
	cfg.ApplyDefaults()
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		pending: make(map[string]*pendingSave),
		saving:  make(map[string]bool),
		index:   make(map[string]*time.Timer),
	}
}

// State reports the session's save state.
func (s *Scheduler) State(sessionID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving[sessionID] {
		return StateSaving
	}
	if _, ok := s.pending[sessionID]; ok {
		return StateScheduled
	}
	return StateIdle
}

// Schedule queues a debounced body save for the session with the given
// message snapshot. A later call for the same session wins.
func (s *Scheduler) Schedule(tenantID, sessionID string, messages []*types.Message) error {
	if s.cfg.ReadOnly {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if prev, ok := s.pending[sessionID]; ok {
		prev.timer.Stop()
		prev.tenantID = tenantID
		prev.messages = messages
		prev.timer.Reset(s.cfg.BodyDelay)
		return nil
	}

	save := &pendingSave{tenantID: tenantID, messages: messages}
	save.timer = time.AfterFunc(s.cfg.BodyDelay, func() {
		s.fire(sessionID)
	})
	s.pending[sessionID] = save
	return nil
}

// ScheduleIndexRefresh queues a debounced index entry refresh. Used for
// metadata changes that do not warrant a body write on their own.
func (s *Scheduler) ScheduleIndexRefresh(tenantID, sessionID string) error {
	if s.cfg.ReadOnly {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if timer, ok := s.index[sessionID]; ok {
		timer.Stop()
		timer.Reset(s.cfg.IndexDelay)
		return nil
	}

	s.index[sessionID] = time.AfterFunc(s.cfg.IndexDelay, func() {
		s.mu.Lock()
		delete(s.index, sessionID)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.store.RefreshIndexEntry(ctx, tenantID, sessionID); err != nil {
			log.Printf("convomem/autosave: index refresh for session %s failed: %v", sessionID, err)
		}
	})
	return nil
}

// SaveNow bypasses the debounce and persists the snapshot synchronously,
// cancelling any pending timer for the session.
func (s *Scheduler) SaveNow(ctx context.Context, tenantID, sessionID string, messages []*types.Message) error {
	if s.cfg.ReadOnly {
		return nil
	}

	s.mu.Lock()
	if prev, ok := s.pending[sessionID]; ok {
		prev.timer.Stop()
		delete(s.pending, sessionID)
	}
	s.saving[sessionID] = true
	s.mu.Unlock()

	err := s.save(ctx, tenantID, sessionID, messages)

	s.mu.Lock()
	delete(s.saving, sessionID)
	s.mu.Unlock()
	return err
}

// Close stops accepting new saves, flushes pending ones synchronously, and
// waits for in-flight timer fires to finish.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	remaining := make(map[string]*pendingSave, len(s.pending))
	for id, save := range s.pending {
		if save.timer.Stop() {
			remaining[id] = save
		}
		delete(s.pending, id)
	}
	for id, timer := range s.index {
		timer.Stop()
		delete(s.index, id)
	}
	s.mu.Unlock()

	var firstErr error
	for id, save := range remaining {
		if err := s.save(ctx, save.tenantID, id, save.messages); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.wg.Wait()
	return firstErr
}

// fire runs when a session's debounce timer elapses.
func (s *Scheduler) fire(sessionID string) {
	s.mu.Lock()
	save, ok := s.pending[sessionID]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, sessionID)
	s.saving[sessionID] = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.save(ctx, save.tenantID, sessionID, save.messages)

	s.mu.Lock()
	delete(s.saving, sessionID)
	s.mu.Unlock()

	if err != nil {
		if s.OnError != nil {
			s.OnError(sessionID, err)
		} else {
			log.Printf("convomem/autosave: save for session %s failed: %v", sessionID, err)
		}
	}
}

// save writes the snapshot, retrying once on failure before surfacing the
// error.
func (s *Scheduler) save(ctx context.Context, tenantID, sessionID string, messages []*types.Message) error {
	err := s.store.Update(ctx, tenantID, sessionID, messages)
	if err == nil {
		return nil
	}
	if retryErr := s.store.Update(ctx, tenantID, sessionID, messages); retryErr == nil {
		return nil
	}
	return err
}
