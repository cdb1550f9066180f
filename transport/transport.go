// Package transport defines the abstract model-call surface the engine
// consumes. The engine does not implement retries or backoff for the
// transport; it only enforces a configurable timeout, surfacing timeout
// errors distinctly from transport errors.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Sentinel errors for transport operations.
var (
	// ErrTimeout indicates the configured completion timeout elapsed.
	ErrTimeout = errors.New("completion timed out")

	// ErrTransport indicates the underlying transport failed.
	ErrTransport = errors.New("transport error")
)

// Options are per-request completion options.
type Options struct {
	Model       string
	MaxTokens   int
	System      string
	Temperature *float64
}

// EventType identifies a streamed completion event.
type EventType string

const (
	// EventTextDelta carries a text fragment of the response.
	EventTextDelta EventType = "text_delta"

	// EventDone closes the stream and carries final usage.
	EventDone EventType = "done"
)

// Event is a single streamed completion event.
type Event struct {
	Type  EventType
	Text  string
	Usage *types.Usage
}

// Stream is a pull-based stream of completion events.
type Stream interface {
	// Next advances the stream. It returns false when the stream is
	// exhausted or failed; check Err afterwards.
	Next() bool

	// Current returns the event at the current position.
	Current() Event

	// Err returns the terminal error, if any.
	Err() error
}

// Completer sends an assembled payload to a model and streams the response.
type Completer interface {
	SendCompletion(ctx context.Context, messages []*types.Message, tools []types.ToolSchema, opts Options) (Stream, error)
}

// Queue is a rate-limited request queue. Implementations own admission
// control; callers pass the work to run once admitted.
type Queue interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// SerialQueue admits requests one at a time with no rate limiting.
// It is the zero-policy Queue used in tests and single-user setups.
type SerialQueue struct {
	slot chan struct{}
}

// NewSerialQueue creates a SerialQueue.
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{slot: make(chan struct{}, 1)}
	q.slot <- struct{}{}
	return q
}

// Do runs fn once the single slot is available.
func (q *SerialQueue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-q.slot:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { q.slot <- struct{}{} }()
	return fn(ctx)
}

// WithTimeout wraps a Completer so that the whole completion, including
// stream consumption, is bounded by d. Deadline hits surface as ErrTimeout;
// other failures as ErrTransport.
func WithTimeout(c Completer, d time.Duration) Completer {
	return &timeoutCompleter{inner: c, timeout: d}
}

type timeoutCompleter struct {
	inner   Completer
	timeout time.Duration
}

func (t *timeoutCompleter) SendCompletion(ctx context.Context, messages []*types.Message, tools []types.ToolSchema, opts Options) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)

	stream, err := t.inner.SendCompletion(ctx, messages, tools, opts)
	if err != nil {
		cancel()
		return nil, classify(ctx, err)
	}
	return &timeoutStream{inner: stream, ctx: ctx, cancel: cancel}, nil
}

type timeoutStream struct {
	inner  Stream
	ctx    context.Context
	cancel context.CancelFunc
	err    error
}

func (s *timeoutStream) Next() bool {
	if s.err != nil {
		return false
	}
	if s.ctx.Err() != nil {
		s.err = classify(s.ctx, s.ctx.Err())
		s.cancel()
		return false
	}
	ok := s.inner.Next()
	if !ok {
		if err := s.inner.Err(); err != nil {
			s.err = classify(s.ctx, err)
		}
		s.cancel()
	}
	return ok
}

func (s *timeoutStream) Current() Event { return s.inner.Current() }

func (s *timeoutStream) Err() error { return s.err }

// classify maps an error to ErrTimeout when the deadline elapsed, otherwise
// to ErrTransport.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// CollectText drains a stream, concatenating text deltas. It returns the
// full text and the final usage when the stream reported one.
func CollectText(s Stream) (string, *types.Usage, error) {
	var text string
	var usage *types.Usage
	for s.Next() {
		event := s.Current()
		switch event.Type {
		case EventTextDelta:
			text += event.Text
		case EventDone:
			usage = event.Usage
		}
	}
	if err := s.Err(); err != nil {
		return "", nil, err
	}
	return text, usage, nil
}
