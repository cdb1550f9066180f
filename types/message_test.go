package types

import (
	"encoding/json"
	"testing"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	original := &Message{
		ID:   "msg-1",
		Role: RoleAssistant,
		Content: []ContentBlock{
			{Type: ContentTypeText, Text: "calling a tool"},
			{Type: ContentTypeToolUse, ToolUseID: "call-1", ToolName: "search", ToolInput: json.RawMessage(`{"q":"weather"}`)},
		},
		PageRefs: []PageRef{{Kind: "panel", URI: "panel://1", Title: "Weather"}},
		Usage:    &Usage{InputTokens: 10, OutputTokens: 20},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.ID != original.ID || decoded.Role != original.Role {
		t.Errorf("identity changed: got %s/%s, want %s/%s", decoded.ID, decoded.Role, original.ID, original.Role)
	}
	if len(decoded.Content) != 2 {
		t.Fatalf("got %d content blocks, want 2", len(decoded.Content))
	}
	if decoded.Content[1].ToolUseID != "call-1" || decoded.Content[1].ToolName != "search" {
		t.Errorf("tool block changed: %+v", decoded.Content[1])
	}
	if string(decoded.Content[1].ToolInput) != `{"q":"weather"}` {
		t.Errorf("tool input changed: %s", decoded.Content[1].ToolInput)
	}
	if decoded.Usage.TotalTokens() != 30 {
		t.Errorf("usage changed: got %d total tokens, want 30", decoded.Usage.TotalTokens())
	}
	if len(decoded.PageRefs) != 1 || decoded.PageRefs[0].URI != "panel://1" {
		t.Errorf("page refs changed: %+v", decoded.PageRefs)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := NewUserMessage("hello")
	original.Usage = &Usage{InputTokens: 5}
	original.PageRefs = []PageRef{{Kind: "panel", URI: "panel://1"}}

	clone := original.Clone()
	clone.Content[0].Text = "changed"
	clone.Usage.InputTokens = 99
	clone.PageRefs[0].URI = "panel://2"

	if original.Content[0].Text != "hello" {
		t.Errorf("clone mutation leaked into original content: %q", original.Content[0].Text)
	}
	if original.Usage.InputTokens != 5 {
		t.Errorf("clone mutation leaked into original usage: %d", original.Usage.InputTokens)
	}
	if original.PageRefs[0].URI != "panel://1" {
		t.Errorf("clone mutation leaked into original page refs: %q", original.PageRefs[0].URI)
	}
}

func TestCloneMessages(t *testing.T) {
	messages := []*Message{NewUserMessage("a"), NewAssistantMessage("b")}
	clones := CloneMessages(messages)

	if len(clones) != 2 {
		t.Fatalf("got %d clones, want 2", len(clones))
	}
	clones[0].Content[0].Text = "mutated"
	if messages[0].Content[0].Text != "a" {
		t.Error("clone mutation leaked into original list")
	}
}

func TestAppendText(t *testing.T) {
	t.Run("grows trailing text block", func(t *testing.T) {
		msg := NewAssistantMessage("hel")
		msg.AppendText("lo")

		if len(msg.Content) != 1 {
			t.Fatalf("got %d blocks, want 1", len(msg.Content))
		}
		if msg.Text() != "hello" {
			t.Errorf("got %q, want %q", msg.Text(), "hello")
		}
	})

	t.Run("adds block when none trailing", func(t *testing.T) {
		msg := &Message{Role: RoleAssistant, Content: []ContentBlock{
			{Type: ContentTypeToolUse, ToolUseID: "call-1", ToolName: "search"},
		}}
		msg.AppendText("done")

		if len(msg.Content) != 2 {
			t.Fatalf("got %d blocks, want 2", len(msg.Content))
		}
		if msg.Content[1].Type != ContentTypeText || msg.Content[1].Text != "done" {
			t.Errorf("unexpected trailing block: %+v", msg.Content[1])
		}
	})
}

func TestText(t *testing.T) {
	msg := &Message{Content: []ContentBlock{
		{Type: ContentTypeText, Text: "a"},
		{Type: ContentTypeToolUse, ToolName: "search"},
		{Type: ContentTypeToolResult, ToolContent: "b"},
	}}
	if got := msg.Text(); got != "ab" {
		t.Errorf("got %q, want %q", got, "ab")
	}
}

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage("call-1", "search", "no results", true)

	if msg.Role != RoleTool {
		t.Errorf("got role %s, want %s", msg.Role, RoleTool)
	}
	if msg.ID == "" {
		t.Error("expected a generated ID")
	}
	block := msg.Content[0]
	if block.ToolCallID != "call-1" || block.ToolName != "search" || block.ToolContent != "no results" || !block.IsError {
		t.Errorf("unexpected block: %+v", block)
	}
}

func TestUsageTotalTokens(t *testing.T) {
	var nilUsage *Usage
	if nilUsage.TotalTokens() != 0 {
		t.Error("nil usage should total zero")
	}
	usage := &Usage{InputTokens: 3, OutputTokens: 4}
	if usage.TotalTokens() != 7 {
		t.Errorf("got %d, want 7", usage.TotalTokens())
	}
}
