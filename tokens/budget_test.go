package tokens

import (
	"math"
	"testing"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

func TestGetModelInfo(t *testing.T) {
	t.Run("known model", func(t *testing.T) {
		info := GetModelInfo("claude-sonnet-4-5-20250929")
		if info.MaxContextTokens != 200000 {
			t.Errorf("got %d context tokens, want 200000", info.MaxContextTokens)
		}
	})

	t.Run("unknown model falls back", func(t *testing.T) {
		info := GetModelInfo("some-future-model")
		if info != DefaultModelInfo {
			t.Errorf("got %+v, want defaults %+v", info, DefaultModelInfo)
		}
	})
}

func TestGetTokenBudget(t *testing.T) {
	est := NewEstimator(nil)
	messages := []*types.Message{
		types.NewUserMessage(textOfTokens(100)),
		types.NewAssistantMessage(textOfTokens(50)),
	}

	budget := est.GetTokenBudget(messages, "claude-sonnet-4-5-20250929")

	if budget.Limit != 200000 {
		t.Errorf("Limit = %d, want 200000", budget.Limit)
	}
	if budget.Used+budget.Remaining != budget.Limit {
		t.Errorf("Used (%d) + Remaining (%d) != Limit (%d)", budget.Used, budget.Remaining, budget.Limit)
	}
	wantPct := float64(budget.Used) / float64(budget.Limit) * 100
	if math.Abs(budget.Percentage-wantPct) > 0.001 {
		t.Errorf("Percentage = %f, want %f", budget.Percentage, wantPct)
	}
}

func TestGetTokenBudgetEmpty(t *testing.T) {
	est := NewEstimator(nil)
	budget := est.GetTokenBudget(nil, "claude-sonnet-4-5-20250929")

	if budget.Used != 0 {
		t.Errorf("Used = %d, want 0", budget.Used)
	}
	if budget.Remaining != budget.Limit {
		t.Errorf("Remaining = %d, want %d", budget.Remaining, budget.Limit)
	}
}

func TestEstimateCost(t *testing.T) {
	info := GetModelInfo("claude-sonnet-4-5-20250929")

	input := EstimateCost(1_000_000, "claude-sonnet-4-5-20250929", false)
	if math.Abs(input-info.InputPerMTok) > 0.0001 {
		t.Errorf("input cost for 1M tokens = %f, want %f", input, info.InputPerMTok)
	}

	output := EstimateCost(1_000_000, "claude-sonnet-4-5-20250929", true)
	if math.Abs(output-info.OutputPerMTok) > 0.0001 {
		t.Errorf("output cost for 1M tokens = %f, want %f", output, info.OutputPerMTok)
	}

	if output <= input {
		t.Error("output tokens should cost more than input tokens")
	}

	if got := EstimateCost(0, "claude-sonnet-4-5-20250929", false); got != 0 {
		t.Errorf("zero tokens should cost nothing, got %f", got)
	}
}
