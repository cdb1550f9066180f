package tokens

import "strings"

// truncatedSuffix marks text cut during prompt optimization.
const truncatedSuffix = "\n[...truncated]"

// PromptParts are the components of a prompt to be fitted into a budget.
type PromptParts struct {
	// Instruction is the task description. Truncated only as a last resort.
	Instruction string

	// UserInput is always included verbatim and never truncated.
	UserInput string

	// Context is supporting material. Truncated first when space is short.
	Context string
}

// OptimizePrompt assembles instruction, context, and user input into a single
// prompt of at most maxTokens tokens. UserInput is always included verbatim;
// Context is truncated first when space is insufficient, then Instruction.
func (e *Estimator) OptimizePrompt(parts PromptParts, maxTokens int) string {
	assemble := func(instruction, context, userInput string) string {
		segments := make([]string, 0, 3)
		if instruction != "" {
			segments = append(segments, instruction)
		}
		if context != "" {
			segments = append(segments, context)
		}
		segments = append(segments, userInput)
		return strings.Join(segments, "\n\n")
	}

	full := assemble(parts.Instruction, parts.Context, parts.UserInput)
	if e.CountTokens(full) <= maxTokens {
		return full
	}

	// Budget the fixed parts first, then shrink context into what remains.
	inputTokens := e.CountTokens(parts.UserInput)
	instructionTokens := e.CountTokens(parts.Instruction)
	sepTokens := e.CountTokens("\n\n") * 2

	contextBudget := maxTokens - inputTokens - instructionTokens - sepTokens - e.CountTokens(truncatedSuffix)
	if contextBudget > 0 && parts.Context != "" {
		context := e.TruncateToTokens(parts.Context, contextBudget) + truncatedSuffix
		candidate := assemble(parts.Instruction, context, parts.UserInput)
		if e.CountTokens(candidate) <= maxTokens {
			return candidate
		}
	}

	// Context could not fit at all; try instruction plus input.
	instructionBudget := maxTokens - inputTokens - sepTokens - e.CountTokens(truncatedSuffix)
	if instructionBudget > 0 && parts.Instruction != "" {
		instruction := parts.Instruction
		if instructionTokens > instructionBudget {
			instruction = e.TruncateToTokens(instruction, instructionBudget) + truncatedSuffix
		}
		candidate := assemble(instruction, "", parts.UserInput)
		if e.CountTokens(candidate) <= maxTokens {
			return candidate
		}
	}

	// Last resort: user input alone, verbatim, even if over budget.
	return parts.UserInput
}
