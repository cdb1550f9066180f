package summarize

import (
	"fmt"
	"strings"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// SystemPrompt instructs the model to produce a rolling conversation digest
// that can stand in for the original turns.
const SystemPrompt = `You are a conversation summarizer for a chat assistant. Your task is to produce a compact digest of the conversation that will stand in for the original messages while preserving the context needed to continue the conversation.

Structure the digest with these sections, writing "None" where a section has no content:

1. **Goal** - what the user is trying to accomplish, with any stated constraints
2. **Key Facts** - data, names, figures, and findings established so far
3. **Decisions** - choices made and the reasoning behind them
4. **Tool Activity** - tools that were called and what their results showed
5. **Open Items** - questions and tasks that remain unresolved

Guidelines:
- Be concise but complete; preserve specifics (names, numbers, identifiers)
- Keep chronological order within each section
- Quote the user verbatim where exact wording carries intent
- Do not add information that was not in the conversation`

// BuildUserPrompt creates the user message asking for a digest of the given
// conversation text.
func BuildUserPrompt(conversationText string) string {
	return `Summarize the following conversation according to the format in your instructions.

<conversation>
` + conversationText + `
</conversation>`
}

// BuildUserPromptWithPrevious threads an earlier digest into the request so
// the new digest covers the whole history.
func BuildUserPromptWithPrevious(previousSummary, conversationText string) string {
	return `An earlier portion of this conversation was already summarized:

<previous_summary>
` + previousSummary + `
</previous_summary>

Summarize the following newer messages, merging them with the previous summary into one updated digest that covers everything.

<conversation>
` + conversationText + `
</conversation>`
}

// FormatMessagesAsText renders messages into a plain-text transcript for the
// summarizer. Long tool results are abbreviated.
func FormatMessagesAsText(messages []*types.Message) string {
	var b strings.Builder

	for _, msg := range messages {
		content := extractContent(msg)
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", msg.Role, content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func extractContent(msg *types.Message) string {
	var parts []string

	for _, block := range msg.Content {
		switch block.Type {
		case types.ContentTypeText:
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case types.ContentTypeToolUse:
			parts = append(parts, fmt.Sprintf("[Tool call: %s, input: %s]", block.ToolName, string(block.ToolInput)))
		case types.ContentTypeToolResult:
			result := block.ToolContent
			if len(result) > 500 {
				result = result[:497] + "..."
			}
			label := "Tool result"
			if block.IsError {
				label = "Tool error"
			}
			parts = append(parts, fmt.Sprintf("[%s for %s: %s]", label, block.ToolName, result))
		case types.ContentTypeImage:
			parts = append(parts, "[image]")
		case types.ContentTypeDocument:
			parts = append(parts, "[document]")
		}
	}
	return strings.Join(parts, "\n")
}
