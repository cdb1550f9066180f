package share

import (
	"strings"
	"testing"
	"time"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

func TestRenderHTML(t *testing.T) {
	renderer := NewRenderer()
	record := &Record{
		ID:      "abc",
		Title:   "Profiling session",
		Summary: "We looked at **pprof**.",
		Messages: []*types.Message{
			types.NewUserMessage("How do I use `pprof`?"),
			types.NewAssistantMessage("Run:\n\n```\ngo tool pprof\n```"),
		},
		CreatedAt: time.Now().UTC(),
	}

	html, err := renderer.RenderHTML(record)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	page := string(html)

	if !strings.Contains(page, "<title>Profiling session</title>") {
		t.Error("title missing")
	}
	if !strings.Contains(page, "<strong>pprof</strong>") {
		t.Error("summary markdown not rendered")
	}
	if !strings.Contains(page, "<code>pprof</code>") {
		t.Error("inline code not rendered")
	}
	if !strings.Contains(page, "message-user") || !strings.Contains(page, "message-assistant") {
		t.Error("role sections missing")
	}
}

func TestRenderHTMLSanitizesScripts(t *testing.T) {
	renderer := NewRenderer()
	record := &Record{
		Title: "safe",
		Messages: []*types.Message{
			types.NewUserMessage(`hello <script>alert("xss")</script> <img src=x onerror="steal()">`),
		},
		CreatedAt: time.Now().UTC(),
	}

	html, err := renderer.RenderHTML(record)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	page := string(html)

	if strings.Contains(page, "<script>") {
		t.Error("script tag survived sanitization")
	}
	if strings.Contains(page, "onerror") {
		t.Error("event handler attribute survived sanitization")
	}
}

func TestRenderHTMLSummarizesToolBlocks(t *testing.T) {
	renderer := NewRenderer()
	record := &Record{
		Title: "tools",
		Messages: []*types.Message{
			types.NewToolResultMessage("call-1", "search", strings.Repeat("secret ", 100), false),
		},
		CreatedAt: time.Now().UTC(),
	}

	html, err := renderer.RenderHTML(record)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(string(html), "secret") {
		t.Error("raw tool output should not be rendered")
	}
}
