package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

type fakeStream struct {
	events  []Event
	pos     int
	current Event
	err     error
	// delay slows each Next so timeouts can fire mid-stream.
	delay time.Duration
}

func (s *fakeStream) Next() bool {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.pos >= len(s.events) {
		return false
	}
	s.current = s.events[s.pos]
	s.pos++
	return true
}

func (s *fakeStream) Current() Event { return s.current }

func (s *fakeStream) Err() error {
	if s.pos >= len(s.events) {
		return s.err
	}
	return nil
}

type fakeCompleter struct {
	stream  *fakeStream
	sendErr error
}

func (c *fakeCompleter) SendCompletion(ctx context.Context, messages []*types.Message, tools []types.ToolSchema, opts Options) (Stream, error) {
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	return c.stream, nil
}

func textEvents(parts ...string) []Event {
	events := make([]Event, 0, len(parts)+1)
	for _, p := range parts {
		events = append(events, Event{Type: EventTextDelta, Text: p})
	}
	events = append(events, Event{Type: EventDone, Usage: &types.Usage{InputTokens: 10, OutputTokens: 5}})
	return events
}

func TestCollectText(t *testing.T) {
	stream := &fakeStream{events: textEvents("hel", "lo")}

	text, usage, err := CollectText(stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Errorf("got %q, want %q", text, "hello")
	}
	if usage == nil || usage.TotalTokens() != 15 {
		t.Errorf("got usage %+v, want 15 total tokens", usage)
	}
}

func TestCollectTextStreamError(t *testing.T) {
	streamErr := errors.New("connection reset")
	stream := &fakeStream{
		events: []Event{{Type: EventTextDelta, Text: "partial"}},
		err:    streamErr,
	}

	_, _, err := CollectText(stream)
	if !errors.Is(err, streamErr) {
		t.Fatalf("got %v, want the stream error", err)
	}
}

func TestWithTimeoutClassifiesErrors(t *testing.T) {
	t.Run("send failure is a transport error", func(t *testing.T) {
		c := WithTimeout(&fakeCompleter{sendErr: errors.New("dns failure")}, time.Second)

		_, err := c.SendCompletion(context.Background(), nil, nil, Options{})
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("got %v, want ErrTransport", err)
		}
	})

	t.Run("deadline during stream is a timeout", func(t *testing.T) {
		stream := &fakeStream{events: textEvents("a", "b", "c", "d"), delay: 30 * time.Millisecond}
		c := WithTimeout(&fakeCompleter{stream: stream}, 40*time.Millisecond)

		wrapped, err := c.SendCompletion(context.Background(), nil, nil, Options{})
		if err != nil {
			t.Fatalf("unexpected send error: %v", err)
		}

		for wrapped.Next() {
		}
		if !errors.Is(wrapped.Err(), ErrTimeout) {
			t.Fatalf("got %v, want ErrTimeout", wrapped.Err())
		}
	})

	t.Run("caller cancellation passes through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := WithTimeout(&fakeCompleter{sendErr: ctx.Err()}, time.Second)

		_, err := c.SendCompletion(ctx, nil, nil, Options{})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
		if errors.Is(err, ErrTransport) {
			t.Error("cancellation must not be classified as a transport failure")
		}
	})

	t.Run("fast stream completes", func(t *testing.T) {
		stream := &fakeStream{events: textEvents("ok")}
		c := WithTimeout(&fakeCompleter{stream: stream}, time.Second)

		wrapped, err := c.SendCompletion(context.Background(), nil, nil, Options{})
		if err != nil {
			t.Fatalf("unexpected send error: %v", err)
		}
		text, _, err := CollectText(wrapped)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "ok" {
			t.Errorf("got %q, want %q", text, "ok")
		}
	})
}

func TestSerialQueueAdmitsOneAtATime(t *testing.T) {
	q := NewSerialQueue()

	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Do(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("observed %d concurrent admissions, want 1", maxActive)
	}
}

func TestSerialQueueRespectsContext(t *testing.T) {
	q := NewSerialQueue()

	release := make(chan struct{})
	go q.Do(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Do(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
	close(release)
}
