// Package budget derives per-category budget status for a period by joining
// ledger spend against the user's limits.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"finassist/internal/core"
)

// SpendReader is the slice of the ledger the evaluator needs.
type SpendReader interface {
	SpendAgainstLimits(ctx context.Context, userID int64, start, end core.Date) ([]core.LimitSpend, error)
}

type Evaluator struct {
	store  SpendReader
	policy core.Policy
}

func NewEvaluator(store SpendReader, policy core.Policy) *Evaluator {
	return &Evaluator{store: store, policy: policy}
}

// Evaluate returns one status per budget limit starting at start, with
// spend summed over [start, end). Results are sorted by category.
func (e *Evaluator) Evaluate(ctx context.Context, userID int64, start, end core.Date) ([]core.BudgetStatus, error) {
	period := core.Period{Start: start, End: end}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	rows, err := e.store.SpendAgainstLimits(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("evaluate budget for user %d period %s: %w", userID, period, err)
	}

	out := make([]core.BudgetStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, Status(r, e.policy.NearLimitRatio))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })

	slog.DebugContext(ctx, "Budget evaluated",
		"user_id", userID,
		"period", period.String(),
		"limits", len(out))

	return out, nil
}

// Status derives the status of one limit. A remaining amount below zero is
// Exceeded; a remaining share of the limit below nearLimit is Near Limit.
// A zero limit is Exceeded as soon as anything is spent.
func Status(ls core.LimitSpend, nearLimit decimal.Decimal) core.BudgetStatus {
	remaining := ls.Limit.Sub(ls.Spent)
	st := core.BudgetStatus{
		Category:  ls.Category,
		Limit:     ls.Limit,
		Spent:     ls.Spent,
		Remaining: remaining,
		Status:    core.StatusOK,
	}

	switch {
	case remaining.Cents < 0:
		st.Status = core.StatusExceeded
	case ls.Limit.Cents == 0:
		// remaining is zero here, so nothing was spent
	case remaining.Decimal().Div(ls.Limit.Decimal()).LessThan(nearLimit):
		st.Status = core.StatusNearLimit
	}
	return st
}
