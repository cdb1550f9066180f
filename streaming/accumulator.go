// Package streaming accumulates a streamed model response into the in-flight
// assistant message.
//
// The accumulator is an explicit state machine:
//
//	Idle -> Streaming -> {Completed, Cancelled, Errored}
//
// Cancellation is a first-class transition, not an error: after Cancel, the
// partial content already written to the message is final.
package streaming

import (
	"context"
	"sync"

	"github.com/Consensys/ask-o11y-plugin-sub002/transport"
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// State is the accumulator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateCancelled
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Accumulator grows a target assistant message from streamed text deltas.
type Accumulator struct {
	mu     sync.Mutex
	state  State
	target *types.Message
	err    error
	cancel chan struct{}

	// OnDelta, if set, is called after each delta is appended. It runs on
	// the consuming goroutine.
	OnDelta func(delta string)
}

// NewAccumulator creates an accumulator writing into target. The target must
// be the last assistant message of the session; its content grows in place.
func NewAccumulator(target *types.Message) *Accumulator {
	return &Accumulator{
		target: target,
		cancel: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the terminal error when the accumulator is in StateErrored.
func (a *Accumulator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Cancel halts consumption. Safe to call from any goroutine, at most once
// effective; later calls are no-ops.
func (a *Accumulator) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.cancel:
	default:
		close(a.cancel)
	}
}

// Consume drains the stream into the target message until the stream ends,
// the context is done, or Cancel is called. Partial content written before
// cancellation remains on the message and is treated as final.
func (a *Accumulator) Consume(ctx context.Context, stream transport.Stream) error {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return ErrNotIdle
	}
	a.state = StateStreaming
	a.mu.Unlock()

	for stream.Next() {
		select {
		case <-ctx.Done():
			a.transition(StateCancelled, nil)
			return nil
		case <-a.cancel:
			a.transition(StateCancelled, nil)
			return nil
		default:
		}

		event := stream.Current()
		switch event.Type {
		case transport.EventTextDelta:
			a.mu.Lock()
			a.target.AppendText(event.Text)
			a.mu.Unlock()
			if a.OnDelta != nil {
				a.OnDelta(event.Text)
			}
		case transport.EventDone:
			if event.Usage != nil {
				a.mu.Lock()
				a.target.Usage = event.Usage
				a.mu.Unlock()
			}
		}
	}

	if err := stream.Err(); err != nil {
		a.transition(StateErrored, err)
		return err
	}

	a.transition(StateCompleted, nil)
	return nil
}

func (a *Accumulator) transition(state State, err error) {
	a.mu.Lock()
	a.state = state
	a.err = err
	a.mu.Unlock()
}
