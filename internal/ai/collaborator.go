// Package ai defines the contract with the language-model collaborator used
// for transaction extraction, categorisation, forecasting and advice, along
// with its Gemini and offline implementations.
package ai

import (
	"context"

	"github.com/shopspring/decimal"

	"finassist/internal/core"
)

// Fallback values returned when the collaborator cannot answer.
const (
	OfflineDescription   = "AI Offline"
	OfflineJustification = "AI Offline."
	OfflineAdvice        = "AI service unavailable for advice."
	OfflineAnswer        = "AI assistant unavailable."
)

// ForecastPeriod is the horizon the advisor asks forecasts for.
const ForecastPeriod = "next month"

// Collaborator is the narrow contract with the language model. Each call is
// text in and structured data out; implementations should honour ctx.
type Collaborator interface {
	ExtractTransaction(ctx context.Context, text string) (Extraction, error)
	ClassifyCategory(ctx context.Context, amount core.Money, description string, candidates []core.Category) (core.Category, error)
	ForecastSpending(ctx context.Context, history []HistoryEntry, period string) (Forecast, error)
	GenerateAdvice(ctx context.Context, ac AdviceContext) (string, error)
	Answer(ctx context.Context, question string, ac AssistantContext) (string, error)
}

// Extraction is what the model read out of a free-text transaction notice.
// Date is left as text; callers decide how to treat a missing or bad date.
type Extraction struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

type Forecast struct {
	PredictedAmount core.Money `json:"predicted_amount"`
	Justification   string     `json:"justification"`
}

// HistoryEntry is the compact form of an expense sent to the model.
type HistoryEntry struct {
	Date        string        `json:"date"`
	Amount      core.Money    `json:"amount"`
	Category    core.Category `json:"category"`
	Description string        `json:"description"`
}

// AdviceContext bundles what the advice prompt is grounded on.
type AdviceContext struct {
	Prediction   Forecast            `json:"prediction"`
	BudgetStatus []core.BudgetStatus `json:"current_budget_status"`
	Recent       []HistoryEntry      `json:"recent_spending"`
}

// AssistantContext bundles what the chat assistant is grounded on.
type AssistantContext struct {
	Summary      core.Summary           `json:"summary"`
	Breakdown    core.CategoryBreakdown `json:"category_breakdown"`
	BudgetStatus []core.BudgetStatus    `json:"budget_status"`
}

// History converts ledger entries to the form sent to the model.
func History(expenses []core.Expense) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, HistoryEntry{
			Date:        e.Date.String(),
			Amount:      e.Amount,
			Category:    e.Category,
			Description: e.Description,
		})
	}
	return out
}
