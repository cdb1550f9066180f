package share

import (
	"context"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/Consensys/ask-o11y-plugin-sub002/storage"
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Manager creates, resolves, and revokes shares for sessions held in a
// SessionStore.
type Manager struct {
	store    Store
	sessions *storage.SessionStore

	// now is swapped out in tests to exercise expiry.
	now func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, sessions *storage.SessionStore) *Manager {
	return &Manager{
		store:    store,
		sessions: sessions,
		now:      time.Now,
	}
}

// CreateShare freezes the session's current state into a new share and
// returns the record. The snapshot is a deep copy; further edits to the
// session do not affect it.
func (m *Manager) CreateShare(ctx context.Context, tenantID, sessionID string, expiry Expiry) (*Record, error) {
	session, err := m.sessions.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	record := &Record{
		ID:        shortuuid.New(),
		TenantID:  tenantID,
		SessionID: sessionID,
		Title:     session.Title,
		Messages:  types.CloneMessages(session.Messages),
		Summary:   session.Summary,
		CreatedAt: now,
	}
	if expiry != ExpiryNever {
		record.ExpiresAt = now.Add(time.Duration(expiry))
	}

	if err := m.store.Put(ctx, record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Resolve loads a share by ID. Expired and revoked shares resolve to
// ErrShareExpired and ErrShareRevoked respectively.
func (m *Manager) Resolve(ctx context.Context, shareID string) (*Record, error) {
	record, err := m.store.Get(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if record.Revoked {
		return nil, ErrShareRevoked
	}
	if record.Expired(m.now().UTC()) {
		return nil, ErrShareExpired
	}
	return record.Clone(), nil
}

// ListShares returns the tenant's shares, newest first, including revoked
// and expired ones so owners can see the full picture.
func (m *Manager) ListShares(ctx context.Context, tenantID string) ([]*Record, error) {
	return m.store.ListByTenant(ctx, tenantID)
}

// ListSessionShares returns the tenant's shares of one session, newest
// first. A session can be shared more than once, each snapshot frozen at a
// different point.
func (m *Manager) ListSessionShares(ctx context.Context, tenantID, sessionID string) ([]*Record, error) {
	records, err := m.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	filtered := records[:0]
	for _, record := range records {
		if record.SessionID == sessionID {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

// Revoke marks a share as revoked. Only the owning tenant may revoke; the
// record is kept so the owner can still list it.
func (m *Manager) Revoke(ctx context.Context, tenantID, shareID string) error {
	record, err := m.store.Get(ctx, shareID)
	if err != nil {
		return err
	}
	if record.TenantID != tenantID {
		return fmt.Errorf("share %s: %w", shareID, ErrShareNotFound)
	}
	if record.Revoked {
		return nil
	}
	record.Revoked = true
	return m.store.Put(ctx, record)
}

// Import materializes a resolvable share as a brand-new writable session
// under the importing tenant. The new session has its own identity and no
// backlink to the source.
func (m *Manager) Import(ctx context.Context, tenantID, shareID string) (*storage.Session, error) {
	record, err := m.Resolve(ctx, shareID)
	if err != nil {
		return nil, err
	}

	session, err := m.sessions.Create(ctx, tenantID, record.Messages)
	if err != nil {
		return nil, err
	}
	if record.Summary != "" {
		if err := m.sessions.SetSummary(ctx, tenantID, session.ID, record.Summary); err != nil {
			return nil, err
		}
		session.Summary = record.Summary
	}
	return session, nil
}
