// Package trim reduces a message list's token footprint to fit a budget
// while preserving as much conversational continuity as possible.
//
// Trimming is tiered: content-level truncation of tool results is always
// preferred over dropping whole messages, and the leading system message is
// never dropped. The input list is never mutated; trimming operates on
// deep copies of any message it changes.
package trim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Consensys/ask-o11y-plugin-sub002/tokens"
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// ErrBudgetOverflow is returned when even the mandatory minimum (system
// message plus the most recent message) exceeds the budget. The returned
// message list is still valid and should be sent with a warning; this is
// never fatal.
var ErrBudgetOverflow = errors.New("context exceeds token budget even after trimming")

// TruncationMarker is appended to tool content that was cut.
const TruncationMarker = "\n[tool output truncated]"

// Default configuration values.
const (
	DefaultToolTokenCeiling           = 2000
	DefaultAggressiveToolTokenCeiling = 200
	DefaultOutputBuffer               = 1000
)

// Config holds trimmer configuration.
type Config struct {
	// ToolTokenCeiling is the per-tool-message token ceiling for the first
	// truncation pass. Default: 2000
	ToolTokenCeiling int

	// AggressiveToolTokenCeiling is the much smaller ceiling applied to all
	// tool messages when the first pass was not enough. Default: 200
	AggressiveToolTokenCeiling int

	// OutputBuffer is the safety margin kept free below the budget when
	// dropping history, leaving room for the model's own output.
	// Default: 1000
	OutputBuffer int
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.ToolTokenCeiling == 0 {
		c.ToolTokenCeiling = DefaultToolTokenCeiling
	}
	if c.AggressiveToolTokenCeiling == 0 {
		c.AggressiveToolTokenCeiling = DefaultAggressiveToolTokenCeiling
	}
	if c.OutputBuffer == 0 {
		c.OutputBuffer = DefaultOutputBuffer
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ToolTokenCeiling < 0 || c.AggressiveToolTokenCeiling < 0 || c.OutputBuffer < 0 {
		return fmt.Errorf("trim config values must be non-negative")
	}
	if c.AggressiveToolTokenCeiling > c.ToolTokenCeiling {
		return fmt.Errorf("aggressive ceiling (%d) must not exceed normal ceiling (%d)",
			c.AggressiveToolTokenCeiling, c.ToolTokenCeiling)
	}
	return nil
}

// Trimmer fits message lists into token budgets.
type Trimmer struct {
	est *tokens.Estimator
	cfg Config
}

// New creates a Trimmer using the given estimator and configuration.
func New(est *tokens.Estimator, cfg Config) *Trimmer {
	cfg.ApplyDefaults()
	return &Trimmer{est: est, cfg: cfg}
}

// Trim returns a view of messages whose total token count (including tool
// schemas) fits within maxTokens, applying tiers in strict order:
//
//  1. pass-through if already within budget
//  2. truncate oversized tool results to the normal ceiling
//  3. truncate all tool results to the aggressive ceiling
//  4. drop oldest history, always keeping the leading system message and
//     at least the most recent message
//
// If even the mandatory minimum exceeds the budget, that minimum is returned
// together with ErrBudgetOverflow.
func (t *Trimmer) Trim(messages []*types.Message, tools []types.ToolSchema, maxTokens int) ([]*types.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}

	if t.est.CalculateContextTokens(messages, tools).TotalTokens <= maxTokens {
		return messages, nil
	}

	// Tier 2: normal tool trim, only where content exceeds the ceiling.
	trimmed := t.truncateToolMessages(messages, t.cfg.ToolTokenCeiling)
	if t.est.CalculateContextTokens(trimmed, tools).TotalTokens <= maxTokens {
		return trimmed, nil
	}

	// Tier 3: aggressive tool trim across all tool messages.
	trimmed = t.truncateToolMessages(trimmed, t.cfg.AggressiveToolTokenCeiling)
	if t.est.CalculateContextTokens(trimmed, tools).TotalTokens <= maxTokens {
		return trimmed, nil
	}

	// Tier 4: drop oldest history.
	return t.dropHistory(trimmed, tools, maxTokens)
}

// truncateToolMessages cuts tool result content above ceiling tokens,
// annotating the cut with TruncationMarker. Only the content changes: role,
// tool names, and call IDs are untouched. Messages that are not modified are
// shared with the input slice, never copied.
func (t *Trimmer) truncateToolMessages(messages []*types.Message, ceiling int) []*types.Message {
	result := make([]*types.Message, len(messages))
	copy(result, messages)

	markerTokens := t.est.CountTokens(TruncationMarker)

	for i, msg := range messages {
		if msg.Role != types.RoleTool {
			continue
		}

		needsCut := false
		for _, block := range msg.Content {
			if block.Type == types.ContentTypeToolResult &&
				!strings.HasSuffix(block.ToolContent, TruncationMarker) &&
				t.est.CountTokens(block.ToolContent) > ceiling {
				needsCut = true
				break
			}
		}
		if !needsCut {
			continue
		}

		msgCopy := msg.Clone()
		for j := range msgCopy.Content {
			block := &msgCopy.Content[j]
			if block.Type != types.ContentTypeToolResult {
				continue
			}
			// Already-truncated content is left alone so trimming stays
			// idempotent.
			if strings.HasSuffix(block.ToolContent, TruncationMarker) {
				continue
			}
			if t.est.CountTokens(block.ToolContent) <= ceiling {
				continue
			}
			keep := ceiling - markerTokens
			if keep < 0 {
				keep = 0
			}
			block.ToolContent = t.est.TruncateToTokens(block.ToolContent, keep) + TruncationMarker
		}
		result[i] = msgCopy
	}
	return result
}

// dropHistory keeps the leading system message plus the largest suffix of the
// remaining messages that fits within maxTokens minus the output buffer.
func (t *Trimmer) dropHistory(messages []*types.Message, tools []types.ToolSchema, maxTokens int) ([]*types.Message, error) {
	var system *types.Message
	rest := messages
	if messages[0].Role == types.RoleSystem {
		system = messages[0]
		rest = messages[1:]
	}

	if len(rest) == 0 {
		if t.est.CalculateContextTokens(messages, tools).TotalTokens > maxTokens {
			return messages, ErrBudgetOverflow
		}
		return messages, nil
	}

	budget := maxTokens - t.cfg.OutputBuffer
	fixed := t.est.CountToolTokens(tools)
	if system != nil {
		fixed += t.est.CountMessageTokens(system)
	}

	// Walk newest to oldest, accumulating the suffix while it still fits.
	suffixStart := len(rest)
	running := fixed
	for i := len(rest) - 1; i >= 0; i-- {
		n := t.est.CountMessageTokens(rest[i])
		if running+n > budget {
			break
		}
		running += n
		suffixStart = i
	}

	// A suffix must not open with a tool result whose tool call was dropped.
	for suffixStart < len(rest)-1 && rest[suffixStart].Role == types.RoleTool {
		suffixStart++
	}

	if suffixStart == len(rest) {
		// Not even the newest message fits with the buffer. Fall back to
		// [system?, lastMessage] regardless of size.
		minimum := make([]*types.Message, 0, 2)
		if system != nil {
			minimum = append(minimum, system)
		}
		minimum = append(minimum, rest[len(rest)-1])
		if t.est.CalculateContextTokens(minimum, tools).TotalTokens > maxTokens {
			return minimum, ErrBudgetOverflow
		}
		return minimum, nil
	}

	result := make([]*types.Message, 0, len(rest)-suffixStart+1)
	if system != nil {
		result = append(result, system)
	}
	result = append(result, rest[suffixStart:]...)
	return result, nil
}
