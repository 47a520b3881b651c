// Package advisor combines budget status, spending history and analytics
// into the context handed to the AI collaborator, and returns results that
// survive partial collaborator failure.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finassist/internal/ai"
	"finassist/internal/core"
	applog "finassist/internal/log"
)

// InsufficientData is returned as Advice when the user has no history.
const InsufficientData = "insufficient data"

type HistoryReader interface {
	RecentExpenses(ctx context.Context, userID int64, limit int) ([]core.Expense, error)
}

type BudgetEvaluator interface {
	Evaluate(ctx context.Context, userID int64, start, end core.Date) ([]core.BudgetStatus, error)
}

type Reports interface {
	Summarize(ctx context.Context, userID int64) (core.Summary, error)
	CategoryBreakdown(ctx context.Context, userID int64) (core.CategoryBreakdown, error)
}

// Advice is the result of AnalyzeBudget. When there is no history only
// Advice is set. Otherwise Prediction and Recommendation are always filled,
// with the *Unavailable flags and Notes explaining any fallback used.
type Advice struct {
	Advice                    string              `json:"advice,omitempty"`
	Prediction                *ai.Forecast        `json:"prediction,omitempty"`
	Recommendation            string              `json:"recommendation,omitempty"`
	BudgetStatus              []core.BudgetStatus `json:"budget_status,omitempty"`
	PredictionUnavailable     bool                `json:"prediction_unavailable,omitempty"`
	RecommendationUnavailable bool                `json:"recommendation_unavailable,omitempty"`
	Notes                     []string            `json:"notes,omitempty"`
}

// Reply is the result of Ask.
type Reply struct {
	Answer      string `json:"answer"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

type Advisor struct {
	history HistoryReader
	budgets BudgetEvaluator
	reports Reports
	ai      ai.Collaborator
	policy  core.Policy
	logger  *applog.Logger
	now     func() time.Time
}

func New(history HistoryReader, budgets BudgetEvaluator, reports Reports, collaborator ai.Collaborator, policy core.Policy, logger *applog.Logger) *Advisor {
	return &Advisor{
		history: history,
		budgets: budgets,
		reports: reports,
		ai:      collaborator,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// AnalyzeBudget forecasts next month's spend from recent history, evaluates
// the current month's budgets and asks the collaborator for advice on both.
// Only a failure to read the history is returned as an error.
func (a *Advisor) AnalyzeBudget(ctx context.Context, userID int64) (Advice, error) {
	recent, err := a.history.RecentExpenses(ctx, userID, a.policy.HistoryWindow)
	if err != nil {
		return Advice{}, fmt.Errorf("analyze budget for user %d: %w", userID, err)
	}
	if len(recent) == 0 {
		a.logger.InfoContext(ctx, "No history to analyze", applog.FieldUserID, userID)
		return Advice{Advice: InsufficientData}, nil
	}

	var out Advice
	history := ai.History(recent)

	forecast, err := a.ai.ForecastSpending(ctx, history, ai.ForecastPeriod)
	if err != nil {
		out.PredictionUnavailable = true
		out.Notes = append(out.Notes, "prediction unavailable: "+reason(err))
		if forecast.Justification == "" {
			forecast = ai.Forecast{Justification: ai.OfflineJustification}
		}
	}
	out.Prediction = &forecast

	month := core.MonthPeriod(a.now())
	status, err := a.budgets.Evaluate(ctx, userID, month.Start, month.End)
	if err != nil {
		a.logger.WarnContext(ctx, "Budget status unavailable for advice",
			applog.FieldUserID, userID,
			applog.FieldPeriod, month.String(),
			applog.FieldError, err)
		out.Notes = append(out.Notes, "budget status unavailable: "+reason(err))
	}
	out.BudgetStatus = status

	window := min(a.policy.RecentWindow, len(history))
	advice, err := a.ai.GenerateAdvice(ctx, ai.AdviceContext{
		Prediction:   forecast,
		BudgetStatus: status,
		Recent:       history[:window],
	})
	if err != nil {
		out.RecommendationUnavailable = true
		out.Notes = append(out.Notes, "recommendation unavailable: "+reason(err))
		if advice == "" {
			advice = ai.OfflineAdvice
		}
	}
	out.Recommendation = advice

	a.logger.InfoContext(ctx, "Budget analyzed",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpAnalyze,
		"history", len(recent),
		"degraded", len(out.Notes) > 0)

	return out, nil
}

// Ask answers a free-form question grounded on the user's summary, category
// breakdown and current-month budget status.
func (a *Advisor) Ask(ctx context.Context, userID int64, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, fmt.Errorf("%w: question is empty", core.ErrValidation)
	}

	summary, err := a.reports.Summarize(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("ask for user %d: %w", userID, err)
	}
	breakdown, err := a.reports.CategoryBreakdown(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("ask for user %d: %w", userID, err)
	}
	month := core.MonthPeriod(a.now())
	status, err := a.budgets.Evaluate(ctx, userID, month.Start, month.End)
	if err != nil {
		return Reply{}, fmt.Errorf("ask for user %d: %w", userID, err)
	}

	answer, err := a.ai.Answer(ctx, question, ai.AssistantContext{
		Summary:      summary,
		Breakdown:    breakdown,
		BudgetStatus: status,
	})
	a.logger.InfoContext(ctx, "Question answered",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpAsk,
		"degraded", err != nil)

	if err != nil {
		if answer == "" {
			answer = ai.OfflineAnswer
		}
		return Reply{Answer: answer, Unavailable: true}, nil
	}
	return Reply{Answer: answer}, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, core.ErrStorage):
		return core.ErrStorage.Error()
	case errors.Is(err, core.ErrCollaboratorUnavailable):
		return core.ErrCollaboratorUnavailable.Error()
	}
	return err.Error()
}
