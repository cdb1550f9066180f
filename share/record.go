package share

import (
	"time"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Expiry is a share lifetime. The zero value means the share never expires.
type Expiry time.Duration

// ExpiryNever marks a share that stays valid until revoked.
const ExpiryNever Expiry = 0

// Hours returns an expiry of n hours.
func Hours(n int) Expiry {
	return Expiry(time.Duration(n) * time.Hour)
}

// Days returns an expiry of n days.
func Days(n int) Expiry {
	return Expiry(time.Duration(n) * 24 * time.Hour)
}

// Record is a persisted share: a frozen snapshot of a session plus the
// metadata needed to resolve, list, and revoke it.
type Record struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"`
	SessionID string           `json:"session_id"`
	Title     string           `json:"title"`
	Messages  []*types.Message `json:"messages"`
	Summary   string           `json:"summary,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	// ExpiresAt is zero for shares that never expire.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Revoked   bool      `json:"revoked,omitempty"`
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Clone returns a deep copy so callers cannot mutate the stored snapshot.
func (r *Record) Clone() *Record {
	clone := *r
	clone.Messages = types.CloneMessages(r.Messages)
	return &clone
}
