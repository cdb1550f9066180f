package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrKeyNotFound indicates the key does not exist for the tenant.
	ErrKeyNotFound = errors.New("key not found")

	// ErrSessionNotFound indicates the session does not exist for the
	// tenant.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveSession indicates the tenant has no active session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrQuotaExceeded indicates a write cannot fit even after eviction,
	// e.g. a single session body exceeds the whole quota. This is fatal
	// for that write and must be reported to the user.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrInvalidDocument indicates an import document could not be parsed
	// or is not a session export.
	ErrInvalidDocument = errors.New("invalid session document")
)
