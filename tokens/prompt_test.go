package tokens

import (
	"strings"
	"testing"
)

func TestOptimizePromptFitsUntouched(t *testing.T) {
	est := NewEstimator(nil)
	parts := PromptParts{
		Instruction: "Answer briefly.",
		UserInput:   "What is Go?",
		Context:     "Go is a programming language.",
	}

	got := est.OptimizePrompt(parts, 1000)

	want := parts.Instruction + "\n\n" + parts.Context + "\n\n" + parts.UserInput
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOptimizePromptTruncatesContextFirst(t *testing.T) {
	est := NewEstimator(nil)
	parts := PromptParts{
		Instruction: textOfTokens(20),
		UserInput:   textOfTokens(20),
		Context:     textOfTokens(500),
	}

	got := est.OptimizePrompt(parts, 200)

	if est.CountTokens(got) > 200 {
		t.Errorf("result is %d tokens, want <= 200", est.CountTokens(got))
	}
	if !strings.Contains(got, parts.Instruction) {
		t.Error("instruction should survive context truncation")
	}
	if !strings.Contains(got, parts.UserInput) {
		t.Error("user input must always be included verbatim")
	}
	if !strings.Contains(got, truncatedSuffix) {
		t.Error("truncated context should carry the truncation marker")
	}
}

func TestOptimizePromptTruncatesInstructionLast(t *testing.T) {
	est := NewEstimator(nil)
	parts := PromptParts{
		Instruction: textOfTokens(300),
		UserInput:   textOfTokens(20),
		Context:     textOfTokens(300),
	}

	got := est.OptimizePrompt(parts, 100)

	if est.CountTokens(got) > 100 {
		t.Errorf("result is %d tokens, want <= 100", est.CountTokens(got))
	}
	if !strings.Contains(got, parts.UserInput) {
		t.Error("user input must always be included verbatim")
	}
	if strings.Contains(got, parts.Context) {
		t.Error("context should have been dropped entirely")
	}
}

func TestOptimizePromptFallsBackToUserInput(t *testing.T) {
	est := NewEstimator(nil)
	parts := PromptParts{
		Instruction: textOfTokens(100),
		UserInput:   textOfTokens(500),
		Context:     textOfTokens(100),
	}

	got := est.OptimizePrompt(parts, 50)

	if got != parts.UserInput {
		t.Error("over-budget prompt should fall back to the verbatim user input")
	}
}
