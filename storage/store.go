package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Key layout per tenant (see package doc).
const (
	sessionKeyPrefix = "session:"
	indexKey         = "index"
	activeKey        = "active"
)

// Default quota values.
const (
	DefaultQuotaBytes  = 5 * 1024 * 1024
	DefaultMaxSessions = 50
	DefaultEvictBatch  = 10
)

// Config holds session store configuration.
type Config struct {
	// QuotaBytes is the per-tenant byte budget for session bodies.
	// Default: 5 MiB
	QuotaBytes int64

	// MaxSessions is the per-tenant session count limit. Default: 50
	MaxSessions int

	// EvictBatch is how many sessions are evicted per round when a write
	// does not fit. Default: 10
	EvictBatch int
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.QuotaBytes == 0 {
		c.QuotaBytes = DefaultQuotaBytes
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.EvictBatch == 0 {
		c.EvictBatch = DefaultEvictBatch
	}
}

// SessionStore provides CRUD over persisted sessions with per-tenant
// isolation, quota enforcement, and index maintenance.
type SessionStore struct {
	kv  KV
	cfg Config
}

// NewSessionStore creates a SessionStore on top of kv.
func NewSessionStore(kv KV, cfg Config) *SessionStore {
	cfg.ApplyDefaults()
	return &SessionStore{kv: kv, cfg: cfg}
}

// Create persists a new session seeded with the initial messages and returns
// it. The title is derived from the first user message.
func (s *SessionStore) Create(ctx context.Context, tenantID string, initial []*types.Message) (*Session, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Title:     DeriveTitle(initial),
		Messages:  initial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if session.Messages == nil {
		session.Messages = []*types.Message{}
	}

	if err := s.writeSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get loads a session body.
func (s *SessionStore) Get(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	body, err := s.kv.Get(ctx, tenantID, sessionKeyPrefix+sessionID)
	if err == ErrKeyNotFound {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// Update replaces the session's message log. Full-body replace, last writer
// wins.
func (s *SessionStore) Update(ctx context.Context, tenantID, sessionID string, messages []*types.Message) error {
	session, err := s.Get(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}

	session.Messages = messages
	if session.Title == "" || session.Title == "New conversation" {
		session.Title = DeriveTitle(messages)
	}
	session.UpdatedAt = time.Now().UTC()
	return s.writeSession(ctx, session)
}

// SetSummary stores the rolling digest on the session without touching the
// message log.
func (s *SessionStore) SetSummary(ctx context.Context, tenantID, sessionID, summary string) error {
	session, err := s.Get(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	session.Summary = summary
	session.UpdatedAt = time.Now().UTC()
	return s.writeSession(ctx, session)
}

// List returns the tenant's index entries sorted by UpdatedAt descending.
func (s *SessionStore) List(ctx context.Context, tenantID string) ([]IndexEntry, error) {
	entries, err := s.readIndex(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	return entries, nil
}

// Delete removes a session. The index entry is removed before the body, so a
// reader can never observe an index entry whose body is missing.
func (s *SessionStore) Delete(ctx context.Context, tenantID, sessionID string) error {
	if err := s.updateIndex(ctx, tenantID, func(entries []IndexEntry) []IndexEntry {
		return removeEntry(entries, sessionID)
	}); err != nil {
		return err
	}

	if active, err := s.activeID(ctx, tenantID); err == nil && active == sessionID {
		if err := s.kv.Delete(ctx, tenantID, activeKey); err != nil {
			return err
		}
	}
	return s.kv.Delete(ctx, tenantID, sessionKeyPrefix+sessionID)
}

// DeleteAll removes every session, the index, and the active pointer for the
// tenant.
func (s *SessionStore) DeleteAll(ctx context.Context, tenantID string) error {
	keys, err := s.kv.ListKeys(ctx, tenantID)
	if err != nil {
		return err
	}

	// Index first, then bodies, for the same reader guarantee as Delete.
	if err := s.kv.Delete(ctx, tenantID, indexKey); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, tenantID, activeKey); err != nil {
		return err
	}
	for _, key := range keys {
		if len(key) > len(sessionKeyPrefix) && key[:len(sessionKeyPrefix)] == sessionKeyPrefix {
			if err := s.kv.Delete(ctx, tenantID, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetCurrent loads the tenant's active session.
func (s *SessionStore) GetCurrent(ctx context.Context, tenantID string) (*Session, error) {
	id, err := s.activeID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, tenantID, id)
}

// SetActive marks a session as the tenant's active one. The session must
// exist.
func (s *SessionStore) SetActive(ctx context.Context, tenantID, sessionID string) error {
	if _, err := s.Get(ctx, tenantID, sessionID); err != nil {
		return err
	}
	return s.kv.Set(ctx, tenantID, activeKey, []byte(sessionID))
}

// ClearActive removes the active-session pointer.
func (s *SessionStore) ClearActive(ctx context.Context, tenantID string) error {
	return s.kv.Delete(ctx, tenantID, activeKey)
}

// GetStorageStats reports the tenant's storage consumption from the index
// alone, without loading bodies.
func (s *SessionStore) GetStorageStats(ctx context.Context, tenantID string) (Stats, error) {
	entries, err := s.readIndex(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{TotalBytes: s.cfg.QuotaBytes, SessionCount: len(entries)}
	for _, entry := range entries {
		stats.UsedBytes += entry.SizeBytes
	}
	return stats, nil
}

// RefreshIndexEntry recomputes a session's index entry from its body. Used
// by the autosave scheduler's low-urgency index refresh path.
func (s *SessionStore) RefreshIndexEntry(ctx context.Context, tenantID, sessionID string) error {
	session, err := s.Get(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.updateIndex(ctx, tenantID, func(entries []IndexEntry) []IndexEntry {
		return upsertEntry(entries, indexEntryFor(session, int64(len(body))))
	})
}

// sessionDocument is the self-describing export format.
type sessionDocument struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Session    *Session  `json:"session"`
}

const (
	documentFormat  = "convomem.session"
	documentVersion = 1
)

// ExportSession serializes a full session, messages and metadata included,
// into a self-describing JSON document.
func (s *SessionStore) ExportSession(ctx context.Context, tenantID, sessionID string) ([]byte, error) {
	session, err := s.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(sessionDocument{
		Format:     documentFormat,
		Version:    documentVersion,
		ExportedAt: time.Now().UTC(),
		Session:    session,
	}, "", "  ")
}

// ImportSession creates a new session for the tenant from an exported
// document. Messages, roles, and ordering round-trip exactly; the session
// gets a fresh identity under the importing tenant.
func (s *SessionStore) ImportSession(ctx context.Context, tenantID string, doc []byte) (*Session, error) {
	var parsed sessionDocument
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if parsed.Format != documentFormat || parsed.Session == nil {
		return nil, fmt.Errorf("%w: unexpected format %q", ErrInvalidDocument, parsed.Format)
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Title:     parsed.Session.Title,
		Messages:  parsed.Session.Messages,
		Summary:   parsed.Session.Summary,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if session.Title == "" {
		session.Title = DeriveTitle(session.Messages)
	}
	if err := s.writeSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// writeSession persists the session body and its index entry, evicting old
// sessions first when the write would not fit the quota. The body is written
// before the index entry so the index never references a missing body.
func (s *SessionStore) writeSession(ctx context.Context, session *Session) error {
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	if err := s.ensureCapacity(ctx, session.TenantID, session.ID, int64(len(body))); err != nil {
		return err
	}

	if err := s.kv.Set(ctx, session.TenantID, sessionKeyPrefix+session.ID, body); err != nil {
		return fmt.Errorf("write session %s: %w", session.ID, err)
	}

	return s.updateIndex(ctx, session.TenantID, func(entries []IndexEntry) []IndexEntry {
		return upsertEntry(entries, indexEntryFor(session, int64(len(body))))
	})
}

// ensureCapacity evicts oldest-by-update sessions in batches until a body of
// the given size fits both quota limits. The active session and the session
// being written are never evicted. Returns ErrQuotaExceeded when eviction
// cannot make room.
func (s *SessionStore) ensureCapacity(ctx context.Context, tenantID, sessionID string, size int64) error {
	if size > s.cfg.QuotaBytes {
		return fmt.Errorf("%w: session body of %d bytes exceeds quota of %d", ErrQuotaExceeded, size, s.cfg.QuotaBytes)
	}

	for {
		entries, err := s.readIndex(ctx, tenantID)
		if err != nil {
			return err
		}

		count := 0
		var used int64
		for _, entry := range entries {
			if entry.ID == sessionID {
				continue // Replaced by the incoming write.
			}
			count++
			used += entry.SizeBytes
		}

		if count+1 <= s.cfg.MaxSessions && used+size <= s.cfg.QuotaBytes {
			return nil
		}

		activeID, _ := s.activeID(ctx, tenantID)
		victims := s.pickEvictionVictims(entries, sessionID, activeID)
		if len(victims) == 0 {
			return fmt.Errorf("%w: nothing left to evict for tenant %s", ErrQuotaExceeded, tenantID)
		}

		for _, victim := range victims {
			if err := s.Delete(ctx, tenantID, victim.ID); err != nil {
				return fmt.Errorf("evict session %s: %w", victim.ID, err)
			}
		}
		log.Printf("convomem/storage: evicted %d session(s) for tenant %s to satisfy quota", len(victims), tenantID)
	}
}

// pickEvictionVictims selects up to EvictBatch oldest-by-update sessions,
// never the active session and never the session being written.
func (s *SessionStore) pickEvictionVictims(entries []IndexEntry, sessionID, activeID string) []IndexEntry {
	candidates := make([]IndexEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == sessionID || entry.ID == activeID {
			continue
		}
		candidates = append(candidates, entry)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
	})
	if len(candidates) > s.cfg.EvictBatch {
		candidates = candidates[:s.cfg.EvictBatch]
	}
	return candidates
}

func (s *SessionStore) activeID(ctx context.Context, tenantID string) (string, error) {
	value, err := s.kv.Get(ctx, tenantID, activeKey)
	if err == ErrKeyNotFound {
		return "", ErrNoActiveSession
	}
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (s *SessionStore) readIndex(ctx context.Context, tenantID string) ([]IndexEntry, error) {
	value, err := s.kv.Get(ctx, tenantID, indexKey)
	if err == ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []IndexEntry
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, fmt.Errorf("decode index for %s: %w", tenantID, err)
	}
	return entries, nil
}

// updateIndex applies fn to the latest persisted index. It uses the store's
// atomic primitive when available, otherwise re-reads before writing.
func (s *SessionStore) updateIndex(ctx context.Context, tenantID string, fn func([]IndexEntry) []IndexEntry) error {
	if atomicKV, ok := s.kv.(AtomicKV); ok {
		return atomicKV.Update(ctx, tenantID, indexKey, func(old []byte) ([]byte, error) {
			var entries []IndexEntry
			if old != nil {
				if err := json.Unmarshal(old, &entries); err != nil {
					return nil, fmt.Errorf("decode index for %s: %w", tenantID, err)
				}
			}
			return json.Marshal(fn(entries))
		})
	}

	entries, err := s.readIndex(ctx, tenantID)
	if err != nil {
		return err
	}
	updated, err := json.Marshal(fn(entries))
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, tenantID, indexKey, updated)
}

func indexEntryFor(session *Session, size int64) IndexEntry {
	return IndexEntry{
		ID:           session.ID,
		Title:        session.Title,
		UpdatedAt:    session.UpdatedAt,
		MessageCount: len(session.Messages),
		SizeBytes:    size,
	}
}

func upsertEntry(entries []IndexEntry, entry IndexEntry) []IndexEntry {
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}

func removeEntry(entries []IndexEntry, sessionID string) []IndexEntry {
	result := entries[:0]
	for _, entry := range entries {
		if entry.ID != sessionID {
			result = append(result, entry)
		}
	}
	return result
}
