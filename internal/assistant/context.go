// Package assistant builds chat completions over the user's expense data.
package assistant

import (
	"encoding/json"
	"fmt"

	"zerobudget/internal/core"
)

const systemPromptFormat = "You are a helpful financial assistant analyzing expense data.\n\nCurrent expense data: %s\n\nGuidelines:\n- Give elaborate answers 10 sentences minimum.\n"

// ContextExpense is the compact expense view embedded in the system prompt.
type ContextExpense struct {
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

// BuildSystemPrompt renders the assistant's system prompt with the user's
// expenses serialized inline. Amounts go out as dollars, dates as days.
func BuildSystemPrompt(expenses []core.ExpenseRecord) (string, error) {
	view := make([]ContextExpense, 0, len(expenses))
	for _, e := range expenses {
		view = append(view, ContextExpense{
			Amount:      e.Amount.Float64(),
			Category:    e.Category,
			Description: e.Description,
			Date:        e.OccurredAt.Format("2006-01-02"),
		})
	}

	data, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("marshal expense context: %w", err)
	}
	return fmt.Sprintf(systemPromptFormat, data), nil
}
