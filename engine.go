package convomem

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/Consensys/ask-o11y-plugin-sub002/autosave"
	"github.com/Consensys/ask-o11y-plugin-sub002/hooks"
	"github.com/Consensys/ask-o11y-plugin-sub002/share"
	"github.com/Consensys/ask-o11y-plugin-sub002/storage"
	"github.com/Consensys/ask-o11y-plugin-sub002/summarize"
	"github.com/Consensys/ask-o11y-plugin-sub002/tokens"
	"github.com/Consensys/ask-o11y-plugin-sub002/trim"
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Engine ties the token estimator, trimmer, summarization trigger, session
// store, and autosave scheduler together around one loaded session at a
// time.
type Engine struct {
	cfg       Config
	est       *tokens.Estimator
	trimmer   *trim.Trimmer
	trigger   *summarize.Trigger
	store     *storage.SessionStore
	scheduler *autosave.Scheduler
	shares    *share.Manager
	hooks     *hooks.Registry

	mu       sync.Mutex
	session  *storage.Session
	readOnly bool
	// summarizedThrough counts the leading messages the current digest
	// stands in for at model-call time. pendingCoverage and
	// pendingSessionID record the snapshot an in-flight summarization was
	// launched over; the digest is discarded unless that session is still
	// the loaded one when it lands.
	summarizedThrough int
	pendingCoverage   int
	pendingSessionID  string
}

// New creates an Engine. The configuration must name a KV backend and a
// tenant; everything else has defaults.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:   cfg,
		store: storage.NewSessionStore(cfg.KV, cfg.Store),
		hooks: hooks.NewRegistry(),
	}

	if cfg.Encoding == "approximate" {
		e.est = tokens.NewEstimator(nil)
	} else {
		enc, err := tokens.NewTiktokenEncoder(cfg.Encoding)
		if err != nil {
			log.Printf("convomem: tokenizer unavailable, using approximation: %v", err)
			enc = nil
		}
		e.est = tokens.NewEstimator(enc)
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.trimmer = trim.New(e.est, cfg.Trim)
	e.trigger = summarize.NewTrigger(cfg.Completer, e.est, cfg.Summarize)
	e.trigger.OnSummary = e.onSummary
	e.scheduler = autosave.NewScheduler(e.store, cfg.Autosave)
	return e, nil
}

// Estimator exposes the engine's token estimator for callers that need raw
// counts or budgets.
func (e *Engine) Estimator() *tokens.Estimator {
	return e.est
}

// Hooks returns the engine's hook registry.
func (e *Engine) Hooks() *hooks.Registry {
	return e.hooks
}

// Store returns the underlying session store for administrative access.
func (e *Engine) Store() *storage.SessionStore {
	return e.store
}

// NewSession creates and loads a fresh session, marking it active.
func (e *Engine) NewSession(ctx context.Context) (*storage.Session, error) {
	session, err := e.store.Create(ctx, e.cfg.TenantID, nil)
	if err != nil {
		return nil, NewEngineError("create_session", err)
	}
	if err := e.store.SetActive(ctx, e.cfg.TenantID, session.ID); err != nil {
		return nil, NewEngineErrorWithSession("set_active", session.ID, err)
	}

	e.setLoaded(session, false)
	return session.Clone(), nil
}

// LoadSession loads an existing session and marks it active.
func (e *Engine) LoadSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	session, err := e.store.Get(ctx, e.cfg.TenantID, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("load_session", sessionID, err)
	}
	if err := e.store.SetActive(ctx, e.cfg.TenantID, session.ID); err != nil {
		return nil, NewEngineErrorWithSession("set_active", session.ID, err)
	}

	e.setLoaded(session, false)
	return session.Clone(), nil
}

// LoadCurrent loads the tenant's active session.
func (e *Engine) LoadCurrent(ctx context.Context) (*storage.Session, error) {
	session, err := e.store.GetCurrent(ctx, e.cfg.TenantID)
	if err != nil {
		return nil, NewEngineError("load_current", err)
	}

	e.setLoaded(session, false)
	return session.Clone(), nil
}

// OpenShared loads a share snapshot as a read-only session. Appending and
// saving are rejected until the caller imports the share into a session of
// their own.
func (e *Engine) OpenShared(ctx context.Context, shareID string) (*storage.Session, error) {
	if e.shares == nil {
		return nil, NewEngineError("open_shared", ErrSharingDisabled)
	}
	record, err := e.shares.Resolve(ctx, shareID)
	if err != nil {
		return nil, NewEngineError("open_shared", err)
	}

	session := &storage.Session{
		ID:        record.SessionID,
		TenantID:  e.cfg.TenantID,
		Title:     record.Title,
		Messages:  record.Messages,
		Summary:   record.Summary,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.CreatedAt,
	}
	e.setLoaded(session, true)
	return session.Clone(), nil
}

// setLoaded installs the session as the engine's loaded one.
func (e *Engine) setLoaded(session *storage.Session, readOnly bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = session
	e.readOnly = readOnly
	e.summarizedThrough = 0
	e.pendingCoverage = 0
	e.pendingSessionID = ""
	e.trigger.SetReadOnly(readOnly)
	e.trigger.SetCurrentSummary(session.Summary)
}

// CurrentSession returns a copy of the loaded session, or nil when none is
// loaded.
func (e *Engine) CurrentSession() *storage.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.Clone()
}

// AppendMessage adds a message to the loaded session, schedules a debounced
// save, and kicks off summarization when the history crosses a threshold.
func (e *Engine) AppendMessage(ctx context.Context, message *types.Message) error {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return NewEngineError("append_message", ErrNoSession)
	}
	if e.readOnly {
		sessionID := e.session.ID
		e.mu.Unlock()
		return NewEngineErrorWithSession("append_message", sessionID, ErrReadOnly)
	}

	e.session.Messages = append(e.session.Messages, message)
	sessionID := e.session.ID
	snapshot := types.CloneMessages(e.session.Messages)
	shouldSummarize := e.trigger.ShouldSummarize(snapshot)
	e.mu.Unlock()

	if err := e.scheduler.Schedule(e.cfg.TenantID, sessionID, snapshot); err != nil {
		return NewEngineErrorWithSession("append_message", sessionID, err)
	}

	if shouldSummarize {
		if err := e.hooks.TriggerBeforeSummarize(ctx, sessionID); err != nil {
			return NewEngineErrorWithSession("before_summarize_hook", sessionID, err)
		}
		// Coverage is recorded only for an accepted launch; calls dropped
		// by the single-flight guard must not advance it. Holding e.mu
		// here keeps onSummary from observing stale pending fields, since
		// the digest callback also takes e.mu before reading them.
		e.mu.Lock()
		if e.trigger.SummarizeAsync(ctx, snapshot) {
			e.pendingCoverage = len(snapshot) - e.cfg.Summarize.KeepRecent
			e.pendingSessionID = sessionID
		}
		e.mu.Unlock()
	}
	return nil
}

// onSummary persists a finished digest and advances the coverage marker.
// A digest that lands after the session it was launched over was switched
// away from is discarded; it must not be written onto the session loaded
// now.
func (e *Engine) onSummary(summary string) {
	e.mu.Lock()
	if e.session == nil || e.readOnly || e.session.ID != e.pendingSessionID {
		// Re-seed the trigger so the stale digest does not thread into
		// the loaded session's next summarization.
		if e.session != nil {
			e.trigger.SetCurrentSummary(e.session.Summary)
		}
		e.mu.Unlock()
		return
	}
	e.session.Summary = summary
	e.summarizedThrough = e.pendingCoverage
	e.pendingSessionID = ""
	sessionID := e.session.ID
	e.mu.Unlock()

	ctx := context.Background()
	if err := e.store.SetSummary(ctx, e.cfg.TenantID, sessionID, summary); err != nil {
		log.Printf("convomem: persisting summary for session %s failed: %v", sessionID, err)
	}
	if err := e.hooks.TriggerAfterSummarize(ctx, sessionID, summary); err != nil {
		log.Printf("convomem: after-summarize hook failed: %v", err)
	}
}

// PrepareContext builds the view of the loaded session that should be sent
// to the model: the digest stands in for the messages it covers, then the
// tiered trimmer cuts the rest down to the model's context budget. The
// stored log is never modified. Returns trim.ErrBudgetOverflow alongside a
// best-effort view when even maximal trimming cannot fit the budget.
func (e *Engine) PrepareContext(ctx context.Context, tools []types.ToolSchema) ([]*types.Message, tokens.Budget, error) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, tokens.Budget{}, NewEngineError("prepare_context", ErrNoSession)
	}
	sessionID := e.session.ID
	view := e.contextViewLocked()
	e.mu.Unlock()

	if err := e.hooks.TriggerBeforeTrim(ctx, sessionID, view); err != nil {
		return nil, tokens.Budget{}, NewEngineErrorWithSession("before_trim_hook", sessionID, err)
	}

	originalTokens := e.est.CalculateContextTokens(view, tools).TotalTokens
	maxTokens := tokens.GetModelInfo(e.cfg.Model).MaxContextTokens

	trimmed, trimErr := e.trimmer.Trim(view, tools, maxTokens)
	if trimErr != nil && trimErr != trim.ErrBudgetOverflow {
		return nil, tokens.Budget{}, NewEngineErrorWithSession("trim", sessionID, trimErr)
	}

	trimmedTokens := e.est.CalculateContextTokens(trimmed, tools).TotalTokens
	result := &hooks.TrimResult{
		OriginalTokens:  originalTokens,
		TrimmedTokens:   trimmedTokens,
		MessagesDropped: len(view) - len(trimmed),
		Tier:            trimTier(originalTokens, trimmedTokens, len(view)-len(trimmed)),
	}
	if err := e.hooks.TriggerAfterTrim(ctx, sessionID, result); err != nil {
		return nil, tokens.Budget{}, NewEngineErrorWithSession("after_trim_hook", sessionID, err)
	}

	budget := e.est.GetTokenBudget(trimmed, e.cfg.Model)
	if trimErr == trim.ErrBudgetOverflow {
		return trimmed, budget, NewEngineErrorWithSession("prepare_context", sessionID, trimErr)
	}
	return trimmed, budget, nil
}

// contextViewLocked assembles the pre-trim view: leading system message,
// then the digest message when one covers a prefix, then the uncovered
// tail. Caller holds e.mu.
func (e *Engine) contextViewLocked() []*types.Message {
	messages := e.session.Messages
	summary := e.session.Summary

	start := 0
	var view []*types.Message
	if len(messages) > 0 && messages[0].Role == types.RoleSystem {
		view = append(view, messages[0])
		start = 1
	}

	covered := e.summarizedThrough
	if summary != "" && covered > start && covered <= len(messages) {
		view = append(view, types.NewSystemMessage("Summary of the earlier conversation:\n\n"+summary))
		start = covered
	}
	return append(view, messages[start:]...)
}

func trimTier(originalTokens, trimmedTokens, dropped int) string {
	switch {
	case dropped > 0:
		return "drop"
	case trimmedTokens < originalTokens:
		return "truncate"
	default:
		return "none"
	}
}

// Budget reports the loaded session's raw token budget before trimming.
func (e *Engine) Budget() (tokens.Budget, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return tokens.Budget{}, NewEngineError("budget", ErrNoSession)
	}
	return e.est.GetTokenBudget(e.session.Messages, e.cfg.Model), nil
}

// SaveNow persists the loaded session synchronously, bypassing the debounce.
func (e *Engine) SaveNow(ctx context.Context) error {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return NewEngineError("save_now", ErrNoSession)
	}
	if e.readOnly {
		e.mu.Unlock()
		return nil
	}
	sessionID := e.session.ID
	snapshot := types.CloneMessages(e.session.Messages)
	sessionCopy := e.session.Clone()
	e.mu.Unlock()

	if err := e.scheduler.SaveNow(ctx, e.cfg.TenantID, sessionID, snapshot); err != nil {
		return NewEngineErrorWithSession("save_now", sessionID, err)
	}

	if body, err := json.Marshal(sessionCopy); err == nil {
		if err := e.hooks.TriggerSessionSaved(ctx, sessionID, len(body)); err != nil {
			return NewEngineErrorWithSession("session_saved_hook", sessionID, err)
		}
	}
	return nil
}

// ListSessions returns the tenant's session index, newest first.
func (e *Engine) ListSessions(ctx context.Context) ([]storage.IndexEntry, error) {
	return e.store.List(ctx, e.cfg.TenantID)
}

// DeleteSession removes a session, unloading it if it is the one loaded.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.store.Delete(ctx, e.cfg.TenantID, sessionID); err != nil {
		return NewEngineErrorWithSession("delete_session", sessionID, err)
	}

	e.mu.Lock()
	if e.session != nil && e.session.ID == sessionID {
		e.session = nil
		e.readOnly = false
	}
	e.mu.Unlock()
	return nil
}

// DeleteAllSessions removes every session for the tenant.
func (e *Engine) DeleteAllSessions(ctx context.Context) error {
	if err := e.store.DeleteAll(ctx, e.cfg.TenantID); err != nil {
		return NewEngineError("delete_all_sessions", err)
	}

	e.mu.Lock()
	e.session = nil
	e.readOnly = false
	e.mu.Unlock()
	return nil
}

// StorageStats reports the tenant's storage consumption.
func (e *Engine) StorageStats(ctx context.Context) (storage.Stats, error) {
	return e.store.GetStorageStats(ctx, e.cfg.TenantID)
}

// ExportSession serializes a session into a self-describing document.
func (e *Engine) ExportSession(ctx context.Context, sessionID string) ([]byte, error) {
	return e.store.ExportSession(ctx, e.cfg.TenantID, sessionID)
}

// ImportSession creates a new session from an exported document.
func (e *Engine) ImportSession(ctx context.Context, doc []byte) (*storage.Session, error) {
	return e.store.ImportSession(ctx, e.cfg.TenantID, doc)
}

// CreateShare freezes the loaded (or named) session into a share.
func (e *Engine) CreateShare(ctx context.Context, sessionID string, expiry share.Expiry) (*share.Record, error) {
	if e.shares == nil {
		return nil, NewEngineError("create_share", ErrSharingDisabled)
	}
	if sessionID == "" {
		e.mu.Lock()
		if e.session == nil {
			e.mu.Unlock()
			return nil, NewEngineError("create_share", ErrNoSession)
		}
		sessionID = e.session.ID
		e.mu.Unlock()
	}
	return e.shares.CreateShare(ctx, e.cfg.TenantID, sessionID, expiry)
}

// ListShares returns the tenant's shares, newest first.
func (e *Engine) ListShares(ctx context.Context) ([]*share.Record, error) {
	if e.shares == nil {
		return nil, NewEngineError("list_shares", ErrSharingDisabled)
	}
	return e.shares.ListShares(ctx, e.cfg.TenantID)
}

// ListSessionShares returns the tenant's shares of one session, newest
// first.
func (e *Engine) ListSessionShares(ctx context.Context, sessionID string) ([]*share.Record, error) {
	if e.shares == nil {
		return nil, NewEngineError("list_session_shares", ErrSharingDisabled)
	}
	return e.shares.ListSessionShares(ctx, e.cfg.TenantID, sessionID)
}

// RevokeShare marks one of the tenant's shares as revoked.
func (e *Engine) RevokeShare(ctx context.Context, shareID string) error {
	if e.shares == nil {
		return NewEngineError("revoke_share", ErrSharingDisabled)
	}
	return e.shares.Revoke(ctx, e.cfg.TenantID, shareID)
}

// ImportShare copies a resolvable share into a new writable session and
// loads it.
func (e *Engine) ImportShare(ctx context.Context, shareID string) (*storage.Session, error) {
	if e.shares == nil {
		return nil, NewEngineError("import_share", ErrSharingDisabled)
	}
	session, err := e.shares.Import(ctx, e.cfg.TenantID, shareID)
	if err != nil {
		return nil, NewEngineError("import_share", err)
	}
	if err := e.store.SetActive(ctx, e.cfg.TenantID, session.ID); err != nil {
		return nil, NewEngineErrorWithSession("set_active", session.ID, err)
	}

	e.setLoaded(session, false)
	return session.Clone(), nil
}

// Close flushes pending saves and shuts the engine down.
func (e *Engine) Close(ctx context.Context) error {
	return e.scheduler.Close(ctx)
}
