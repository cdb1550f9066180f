package storage

import (
	"strings"
	"time"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Session represents a persisted conversation. The Messages slice is the
// source of truth: an ordered, append-only log. Trimming and summarization
// operate on views of it and never remove entries from storage.
type Session struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	// Title is derived from the first user message.
	Title string `json:"title"`

	Messages []*types.Message `json:"messages"`

	// Summary is the rolling compressed digest of earlier messages, used
	// as model context. It never replaces stored messages.
	Summary string `json:"summary,omitempty"`

	// IsSummarizing is true only while an async summarization call is
	// outstanding.
	IsSummarizing bool `json:"is_summarizing,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone deep-copies the session, including its message log.
func (s *Session) Clone() *Session {
	sessionCopy := *s
	sessionCopy.Messages = types.CloneMessages(s.Messages)
	return &sessionCopy
}

// IndexEntry is a lightweight projection of a session kept in the per-tenant
// index, so listing and sorting never loads full message bodies.
type IndexEntry struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`

	// SizeBytes is the serialized body size, kept here so quota math
	// works from the index alone.
	SizeBytes int64 `json:"size_bytes"`
}

// Stats describes a tenant's storage consumption.
type Stats struct {
	UsedBytes    int64 `json:"used_bytes"`
	TotalBytes   int64 `json:"total_bytes"`
	SessionCount int   `json:"session_count"`
}

// titleMaxRunes bounds derived session titles.
const titleMaxRunes = 60

// DeriveTitle builds a session title from the first user message.
func DeriveTitle(messages []*types.Message) string {
	for _, msg := range messages {
		if msg.Role != types.RoleUser {
			continue
		}
		text := strings.TrimSpace(msg.Text())
		if text == "" {
			continue
		}
		if line, _, found := strings.Cut(text, "\n"); found {
			text = line
		}
		runes := []rune(text)
		if len(runes) > titleMaxRunes {
			text = string(runes[:titleMaxRunes-1]) + "…"
		}
		return text
	}
	return "New conversation"
}
