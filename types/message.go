package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the message role
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleSystem represents a system message
	RoleSystem Role = "system"

	// RoleTool represents a tool result message
	RoleTool Role = "tool"
)

// Message represents a conversation message.
//
// Messages are append-only: once added to a session they are never mutated,
// with one exception - the content of the last assistant message may grow
// in place while a response is streaming.
type Message struct {
	ID      string         `json:"id"`
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`

	// PageRefs are side-content references attached to the message
	// (e.g. panels or visualizations rendered next to it).
	PageRefs []PageRef `json:"page_refs,omitempty"`

	Usage     *Usage    `json:"usage,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// NewUserMessage creates a user message with a single text block.
func NewUserMessage(text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   []ContentBlock{{Type: ContentTypeText, Text: text}},
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantMessage creates an assistant message with a single text block.
func NewAssistantMessage(text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   []ContentBlock{{Type: ContentTypeText, Text: text}},
		Timestamp: time.Now().UTC(),
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      RoleSystem,
		Content:   []ContentBlock{{Type: ContentTypeText, Text: text}},
		Timestamp: time.Now().UTC(),
	}
}

// NewToolResultMessage creates a tool message carrying the result for a
// previous tool call.
func NewToolResultMessage(toolCallID, toolName, content string, isError bool) *Message {
	return &Message{
		ID:   uuid.New().String(),
		Role: RoleTool,
		Content: []ContentBlock{{
			Type:        ContentTypeToolResult,
			ToolCallID:  toolCallID,
			ToolName:    toolName,
			ToolContent: content,
			IsError:     isError,
		}},
		Timestamp: time.Now().UTC(),
	}
}

// Text returns the concatenated text content of the message.
func (m *Message) Text() string {
	var b strings.Builder
	for _, block := range m.Content {
		switch block.Type {
		case ContentTypeText:
			b.WriteString(block.Text)
		case ContentTypeToolResult:
			b.WriteString(block.ToolContent)
		}
	}
	return b.String()
}

// AppendText grows the trailing text block of the message, adding one if the
// message has none. Used while streaming an assistant response.
func (m *Message) AppendText(delta string) {
	if n := len(m.Content); n > 0 && m.Content[n-1].Type == ContentTypeText {
		m.Content[n-1].Text += delta
		return
	}
	m.Content = append(m.Content, ContentBlock{Type: ContentTypeText, Text: delta})
}

// Clone creates a deep copy of the message. Trimming operates on clones so
// that the stored log is never mutated.
func (m *Message) Clone() *Message {
	msgCopy := *m

	msgCopy.Content = make([]ContentBlock, len(m.Content))
	copy(msgCopy.Content, m.Content)

	if m.PageRefs != nil {
		msgCopy.PageRefs = make([]PageRef, len(m.PageRefs))
		copy(msgCopy.PageRefs, m.PageRefs)
	}

	if m.Usage != nil {
		usageCopy := *m.Usage
		msgCopy.Usage = &usageCopy
	}

	return &msgCopy
}

// CloneMessages deep-copies a message list.
func CloneMessages(messages []*Message) []*Message {
	result := make([]*Message, len(messages))
	for i, msg := range messages {
		result[i] = msg.Clone()
	}
	return result
}

// ContentType represents the type of content block
type ContentType string

const (
	// ContentTypeText represents text content
	ContentTypeText ContentType = "text"

	// ContentTypeToolUse represents a tool call issued by the assistant
	ContentTypeToolUse ContentType = "tool_use"

	// ContentTypeToolResult represents a tool result block
	ContentTypeToolResult ContentType = "tool_result"

	// ContentTypeImage represents an image reference
	ContentTypeImage ContentType = "image"

	// ContentTypeDocument represents a document block
	ContentTypeDocument ContentType = "document"
)

// ContentBlock represents a piece of content in a message. The Type field
// selects which of the remaining fields are meaningful, so the trimmer and
// estimator can switch exhaustively instead of type-sniffing.
type ContentBlock struct {
	Type ContentType `json:"type"`

	// Text content
	Text string `json:"text,omitempty"`

	// Tool use content
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// Shared by tool_use and tool_result
	ToolName string `json:"tool_name,omitempty"`

	// Tool result content
	ToolCallID  string `json:"tool_call_id,omitempty"`
	ToolContent string `json:"tool_content,omitempty"`
	IsError     bool   `json:"is_error,omitempty"`

	// Image content
	ImageSource *ImageSource `json:"image_source,omitempty"`

	// Document content
	DocumentSource *DocumentSource `json:"document_source,omitempty"`
}

// ImageSource represents an image reference
type ImageSource struct {
	Type      string `json:"type"`       // "base64" or "url"
	MediaType string `json:"media_type"` // "image/jpeg", "image/png", etc.
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// DocumentSource represents a document source
type DocumentSource struct {
	Type      string `json:"type"`       // "base64"
	MediaType string `json:"media_type"` // "application/pdf"
	Data      string `json:"data"`
}

// PageRef is a reference to side content rendered alongside a message.
type PageRef struct {
	Kind  string `json:"kind"`
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (u *Usage) TotalTokens() int {
	if u == nil {
		return 0
	}
	return u.InputTokens + u.OutputTokens
}

// ToolSchema describes a tool made available to the model. Only the parts
// that contribute to the prompt payload are modeled.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}
