package share

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Renderer turns a share record into a standalone, sanitized HTML page.
type Renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// NewRenderer creates a Renderer with GitHub-flavored markdown and a UGC
// sanitization policy. Conversation text is untrusted input.
func NewRenderer() *Renderer {
	return &Renderer{
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   bluemonday.UGCPolicy(),
	}
}

// RenderHTML produces a full HTML document for the share.
func (r *Renderer) RenderHTML(record *Record) ([]byte, error) {
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(record.Title))
	page.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&page, "<h1>%s</h1>\n", html.EscapeString(record.Title))

	if record.Summary != "" {
		body, err := r.renderMarkdown(record.Summary)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&page, "<section class=\"summary\">\n%s</section>\n", body)
	}

	for _, message := range record.Messages {
		text := messageDisplayText(message)
		if text == "" {
			continue
		}
		body, err := r.renderMarkdown(text)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&page, "<section class=\"message message-%s\">\n<h2>%s</h2>\n%s</section>\n",
			html.EscapeString(string(message.Role)), html.EscapeString(string(message.Role)), body)
	}

	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

func (r *Renderer) renderMarkdown(source string) ([]byte, error) {
	var raw bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &raw); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return r.policy.SanitizeBytes(raw.Bytes()), nil
}

// messageDisplayText extracts the human-readable portion of a message. Tool
// calls and results are summarized rather than dumped.
func messageDisplayText(message *types.Message) string {
	var parts []string
	for _, block := range message.Content {
		switch block.Type {
		case types.ContentTypeText:
			parts = append(parts, block.Text)
		case types.ContentTypeToolUse:
			parts = append(parts, fmt.Sprintf("*Used tool `%s`*", block.ToolName))
		case types.ContentTypeToolResult:
			parts = append(parts, "*Tool result omitted*")
		}
	}
	return strings.Join(parts, "\n\n")
}
