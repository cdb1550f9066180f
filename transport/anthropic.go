package transport

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// AnthropicCompleter implements Completer on top of the Anthropic streaming
// API.
type AnthropicCompleter struct {
	client *anthropic.Client
}

// NewAnthropicCompleter creates an AnthropicCompleter.
func NewAnthropicCompleter(client *anthropic.Client) *AnthropicCompleter {
	return &AnthropicCompleter{client: client}
}

// SendCompletion sends the payload and returns a stream of text deltas.
func (a *AnthropicCompleter) SendCompletion(ctx context.Context, messages []*types.Message, tools []types.ToolSchema, opts Options) (Stream, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: int64(opts.MaxTokens),
		Messages:  convertMessages(messages),
		Tools:     convertTools(tools),
	}

	system := opts.System
	if system == "" {
		// A leading system message in the list serves as the system prompt.
		if len(messages) > 0 && messages[0].Role == types.RoleSystem {
			system = messages[0].Text()
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	return &anthropicStream{inner: stream}, nil
}

// anthropicStream adapts the SDK event stream to the Stream interface.
type anthropicStream struct {
	inner   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	current Event
	usage   types.Usage
	done    bool
}

func (s *anthropicStream) Next() bool {
	if s.done {
		return false
	}
	for s.inner.Next() {
		switch e := s.inner.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			s.usage.InputTokens = int(e.Message.Usage.InputTokens)

		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := e.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				s.current = Event{Type: EventTextDelta, Text: delta.Text}
				return true
			}

		case anthropic.MessageDeltaEvent:
			s.usage.OutputTokens = int(e.Usage.OutputTokens)
		}
	}
	if s.inner.Err() != nil {
		return false
	}

	// Stream drained cleanly: emit a final done event exactly once.
	s.done = true
	usage := s.usage
	s.current = Event{Type: EventDone, Usage: &usage}
	return true
}

func (s *anthropicStream) Current() Event { return s.current }

func (s *anthropicStream) Err() error { return s.inner.Err() }

// convertMessages converts engine messages to Anthropic message params.
// System messages are handled separately; tool messages carry their results
// as user-role tool_result blocks per the Anthropic wire convention.
func convertMessages(messages []*types.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == types.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}

		content := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case types.ContentTypeText:
				if block.Text != "" {
					content = append(content, anthropic.NewTextBlock(block.Text))
				}
			case types.ContentTypeToolUse:
				var input any
				if len(block.ToolInput) > 0 {
					if err := json.Unmarshal(block.ToolInput, &input); err != nil {
						input = map[string]any{}
					}
				}
				content = append(content, anthropic.NewToolUseBlock(block.ToolUseID, input, block.ToolName))
			case types.ContentTypeToolResult:
				content = append(content, anthropic.NewToolResultBlock(block.ToolCallID, block.ToolContent, block.IsError))
			}
			// Image and document blocks are dropped from the outgoing
			// payload; their token footprint is still estimated upstream.
		}

		if len(content) > 0 {
			result = append(result, anthropic.MessageParam{Role: role, Content: content})
		}
	}
	return result
}

// convertTools converts tool schemas to Anthropic tool params.
func convertTools(tools []types.ToolSchema) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{Type: "object"}
		if len(tool.InputSchema) > 0 {
			var schema struct {
				Properties map[string]any `json:"properties"`
				Required   []string       `json:"required"`
			}
			if err := json.Unmarshal(tool.InputSchema, &schema); err == nil {
				inputSchema.Properties = schema.Properties
				if len(schema.Required) > 0 {
					inputSchema.Required = schema.Required
				}
			}
		}

		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: inputSchema,
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return result
}
