package tokens

import (
	"crypto/sha256"
	"sync"
	"unicode/utf8"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

const (
	// messageOverheadTokens is the per-message structural overhead
	// (role, separators).
	messageOverheadTokens = 4

	// toolBlockOverheadTokens is the extra overhead for tool call and
	// tool result framing.
	toolBlockOverheadTokens = 10

	// imageTokens is the fixed estimate charged per image reference.
	imageTokens = 200

	// toolsPreambleTokens is the fixed overhead for the tool-use system
	// preamble whenever any tools are attached.
	toolsPreambleTokens = 40
)

// Estimator counts tokens for text, messages, and tool schemas.
// Counts are cached by content hash; the zero encoder falls back to a
// character-based approximation.
type Estimator struct {
	enc Encoder

	mu    sync.Mutex
	cache map[[32]byte]int
}

// NewEstimator creates an Estimator. A nil encoder selects the
// character-based approximation.
func NewEstimator(enc Encoder) *Estimator {
	return &Estimator{
		enc:   enc,
		cache: make(map[[32]byte]int),
	}
}

// CountTokens counts tokens for a plain text string.
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e.enc == nil {
		return approximateTokens(text)
	}

	key := sha256.Sum256([]byte(text))
	e.mu.Lock()
	if n, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return n
	}
	e.mu.Unlock()

	n := len(e.enc.Encode(text))

	e.mu.Lock()
	e.cache[key] = n
	e.mu.Unlock()
	return n
}

// CountMessageTokens counts tokens for a single message, including
// structural overhead and a fixed per-image estimate.
func (e *Estimator) CountMessageTokens(msg *types.Message) int {
	if msg == nil {
		return 0
	}

	total := messageOverheadTokens
	for _, block := range msg.Content {
		switch block.Type {
		case types.ContentTypeText:
			total += e.CountTokens(block.Text)
		case types.ContentTypeToolUse:
			total += e.CountTokens(block.ToolName) + toolBlockOverheadTokens
			if len(block.ToolInput) > 0 {
				total += e.CountTokens(string(block.ToolInput))
			}
		case types.ContentTypeToolResult:
			total += toolBlockOverheadTokens
			total += e.CountTokens(block.ToolContent)
		case types.ContentTypeImage:
			total += imageTokens
		case types.ContentTypeDocument:
			if block.DocumentSource != nil {
				total += approximateTokens(block.DocumentSource.Data)
			}
		default:
			if block.Text != "" {
				total += e.CountTokens(block.Text)
			}
		}
	}
	return total
}

// CountToolTokens counts tokens for the tool schemas attached to a request.
func (e *Estimator) CountToolTokens(tools []types.ToolSchema) int {
	if len(tools) == 0 {
		return 0
	}

	total := toolsPreambleTokens
	for _, tool := range tools {
		total += e.CountTokens(tool.Name)
		total += e.CountTokens(tool.Description)
		if len(tool.InputSchema) > 0 {
			total += e.CountTokens(string(tool.InputSchema))
		}
	}
	return total
}

// ContextTokens is the token footprint of an assembled request payload.
type ContextTokens struct {
	MessageTokens int
	ToolTokens    int
	TotalTokens   int

	// ByRole breaks message tokens down per role.
	ByRole map[types.Role]int
}

// CalculateContextTokens counts the full payload: messages plus tool schemas,
// with a per-role breakdown.
func (e *Estimator) CalculateContextTokens(messages []*types.Message, tools []types.ToolSchema) ContextTokens {
	result := ContextTokens{ByRole: make(map[types.Role]int)}

	for _, msg := range messages {
		n := e.CountMessageTokens(msg)
		result.MessageTokens += n
		result.ByRole[msg.Role] += n
	}
	result.ToolTokens = e.CountToolTokens(tools)
	result.TotalTokens = result.MessageTokens + result.ToolTokens
	return result
}

// SumUsage totals the recorded usage across messages. Messages without
// recorded usage contribute nothing; use CalculateContextTokens for a
// content-based count.
func SumUsage(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += msg.Usage.TotalTokens()
	}
	return total
}

// TruncateToTokens returns the longest prefix of text whose token count does
// not exceed maxTokens. The cut never splits a UTF-8 rune; it may land inside
// structured content such as a JSON fragment.
func (e *Estimator) TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if e.CountTokens(text) <= maxTokens {
		return text
	}

	// Binary search over rune boundaries: token count is monotone in
	// prefix length.
	boundaries := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		boundaries = append(boundaries, i)
	}
	boundaries = append(boundaries, len(text))

	lo, hi := 0, len(boundaries)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if e.CountTokens(text[:boundaries[mid]]) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return text[:boundaries[lo]]
}
