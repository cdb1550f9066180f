package tokens

import (
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// ModelInfo contains model-specific parameters: context window size and
// pricing in USD per million tokens.
type ModelInfo struct {
	MaxContextTokens int
	InputPerMTok     float64
	OutputPerMTok    float64
}

// KnownModels maps model IDs to their capabilities and pricing.
var KnownModels = map[string]ModelInfo{
	// Claude 4 models
	"claude-sonnet-4-5-20250929": {MaxContextTokens: 200000, InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-opus-4-5-20251101":   {MaxContextTokens: 200000, InputPerMTok: 5.00, OutputPerMTok: 25.00},
	// Claude 3.5 models
	"claude-3-5-sonnet-20241022": {MaxContextTokens: 200000, InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku-20241022":  {MaxContextTokens: 200000, InputPerMTok: 0.80, OutputPerMTok: 4.00},
	// Claude 3 models
	"claude-3-opus-20240229":  {MaxContextTokens: 200000, InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-haiku-20240307": {MaxContextTokens: 200000, InputPerMTok: 0.25, OutputPerMTok: 1.25},
}

// DefaultModelInfo is used for model names not present in KnownModels.
// Unknown models never raise; they fall back to this table entry.
var DefaultModelInfo = ModelInfo{MaxContextTokens: 200000, InputPerMTok: 3.00, OutputPerMTok: 15.00}

// GetModelInfo returns model info, using DefaultModelInfo for unknown models.
func GetModelInfo(model string) ModelInfo {
	if info, ok := KnownModels[model]; ok {
		return info
	}
	return DefaultModelInfo
}

// Budget is a snapshot of context-window headroom. It is a pure computed
// value and is never persisted.
type Budget struct {
	Used       int
	Remaining  int
	Limit      int
	Percentage float64
}

// GetTokenBudget computes the budget snapshot for a message list against the
// model's context window.
func (e *Estimator) GetTokenBudget(messages []*types.Message, model string) Budget {
	info := GetModelInfo(model)
	used := e.CalculateContextTokens(messages, nil).TotalTokens

	remaining := info.MaxContextTokens - used
	if remaining < 0 {
		remaining = 0
	}

	return Budget{
		Used:       used,
		Remaining:  remaining,
		Limit:      info.MaxContextTokens,
		Percentage: float64(used) / float64(info.MaxContextTokens) * 100,
	}
}

// EstimateCost estimates the monetary cost in USD for the given token count.
func EstimateCost(tokenCount int, model string, isOutput bool) float64 {
	info := GetModelInfo(model)
	rate := info.InputPerMTok
	if isOutput {
		rate = info.OutputPerMTok
	}
	return float64(tokenCount) / 1_000_000 * rate
}
