// Package testutil provides shared helpers for tests: canned conversations
// and a scripted in-memory transport.
package testutil

import (
	"context"
	"fmt"

	"github.com/Consensys/ask-o11y-plugin-sub002/transport"
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Conversation builds an alternating user/assistant history of n messages.
func Conversation(n int) []*types.Message {
	messages := make([]*types.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			messages = append(messages, types.NewUserMessage(fmt.Sprintf("user turn %d", i)))
		} else {
			messages = append(messages, types.NewAssistantMessage(fmt.Sprintf("assistant turn %d", i)))
		}
	}
	return messages
}

// ScriptedCompleter returns the same scripted text for every completion.
// Set Err to make every call fail instead.
type ScriptedCompleter struct {
	Text  string
	Usage types.Usage
	Err   error

	// Calls counts completed SendCompletion invocations.
	Calls int
}

func (c *ScriptedCompleter) SendCompletion(ctx context.Context, messages []*types.Message, tools []types.ToolSchema, opts transport.Options) (transport.Stream, error) {
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	usage := c.Usage
	return &scriptedStream{
		events: []transport.Event{
			{Type: transport.EventTextDelta, Text: c.Text},
			{Type: transport.EventDone, Usage: &usage},
		},
	}, nil
}

type scriptedStream struct {
	events  []transport.Event
	pos     int
	current transport.Event
	err     error
}

// FailingStream builds a stream that yields the given events and then fails.
func FailingStream(err error, events ...transport.Event) transport.Stream {
	return &scriptedStream{events: events, err: err}
}

func (s *scriptedStream) Next() bool {
	if s.pos >= len(s.events) {
		return false
	}
	s.current = s.events[s.pos]
	s.pos++
	return true
}

func (s *scriptedStream) Current() transport.Event { return s.current }

func (s *scriptedStream) Err() error {
	if s.pos >= len(s.events) {
		return s.err
	}
	return nil
}
