package convomem

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the engine configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoSession is returned when no session is loaded
	ErrNoSession = errors.New("no session loaded")

	// ErrReadOnly is returned when mutating a session opened from a share
	ErrReadOnly = errors.New("session is read-only")

	// ErrSharingDisabled is returned when share operations are called on an
	// engine built without a share store
	ErrSharingDisabled = errors.New("sharing is not configured")
)

// EngineError represents an error with additional context
type EngineError struct {
	Op        string         // Operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewEngineError creates a new EngineError
func NewEngineError(op string, err error) *EngineError {
	return &EngineError{
		Op:  op,
		Err: err,
	}
}

// NewEngineErrorWithSession creates a new EngineError with session ID
func NewEngineErrorWithSession(op string, sessionID string, err error) *EngineError {
	return &EngineError{
		Op:        op,
		Err:       err,
		SessionID: sessionID,
	}
}
