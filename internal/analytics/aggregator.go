// Package analytics computes read-only reports over a user's expense
// history: totals, category shares, monthly trend and anomaly flags.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"finassist/internal/core"
)

// percentUnits is 100.00% expressed in hundredths of a percent.
const percentUnits = 10000

// HistoryReader is the slice of the ledger the aggregator needs.
type HistoryReader interface {
	ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error)
}

// ReportCache stores computed reports grouped per user.
type ReportCache interface {
	Get(key string) (any, bool)
	SetScoped(scope, key string, data any)
	Invalidate(scope string) int
}

type Aggregator struct {
	store  HistoryReader
	cache  ReportCache
	policy core.Policy
}

// NewAggregator builds an aggregator. cache may be nil to disable caching.
func NewAggregator(store HistoryReader, cache ReportCache, policy core.Policy) *Aggregator {
	return &Aggregator{store: store, cache: cache, policy: policy}
}

func (a *Aggregator) Summarize(ctx context.Context, userID int64) (core.Summary, error) {
	return cached(ctx, a, "summary", userID, Summarize)
}

func (a *Aggregator) CategoryBreakdown(ctx context.Context, userID int64) (core.CategoryBreakdown, error) {
	return cached(ctx, a, "breakdown", userID, Breakdown)
}

func (a *Aggregator) MonthlyTrend(ctx context.Context, userID int64) ([]core.MonthTotal, error) {
	return cached(ctx, a, "trend", userID, MonthlyTrend)
}

func (a *Aggregator) Anomalies(ctx context.Context, userID int64) ([]core.AnomalyFlag, error) {
	return cached(ctx, a, "anomalies", userID, func(history []core.Expense) []core.AnomalyFlag {
		return Anomalies(history, a.policy.AnomalyMultiplier)
	})
}

// Invalidate drops every cached report of the user. Writers call it after
// each ledger change.
func (a *Aggregator) Invalidate(ctx context.Context, userID int64) {
	if a.cache == nil {
		return
	}
	n := a.cache.Invalidate(userScope(userID))
	slog.DebugContext(ctx, "Analytics cache invalidated", "user_id", userID, "keys", n)
}

func cached[T any](ctx context.Context, a *Aggregator, report string, userID int64, compute func([]core.Expense) T) (T, error) {
	key := report + ":" + strconv.FormatInt(userID, 10)
	if a.cache != nil {
		if v, ok := a.cache.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}

	var zero T
	history, err := a.store.ListExpenses(ctx, userID)
	if err != nil {
		return zero, fmt.Errorf("build %s report for user %d: %w", report, userID, err)
	}

	out := compute(history)
	if a.cache != nil {
		a.cache.SetScoped(userScope(userID), key, out)
	}
	return out, nil
}

func userScope(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// Summarize totals the history. The average is rounded half-up to cents;
// an empty history yields all zeros.
func Summarize(history []core.Expense) core.Summary {
	var total core.Money
	for _, e := range history {
		total = total.Add(e.Amount)
	}
	s := core.Summary{TotalSpent: total, TransactionCount: len(history)}
	if len(history) > 0 {
		// the mean of int64 amounts always fits
		s.AverageAmount, _ = core.MoneyFromDecimal(total.Decimal().Div(decimal.NewFromInt(int64(len(history)))))
	}
	return s
}

// Breakdown groups the history by category. Percentages are apportioned in
// hundredths by largest remainder, so they always add up to exactly 100.00
// and each is within 0.01 of its exact share.
func Breakdown(history []core.Expense) core.CategoryBreakdown {
	totals := make(map[core.Category]int64)
	var lifetime int64
	for _, e := range history {
		totals[e.Category] += e.Amount.Cents
		lifetime += e.Amount.Cents
	}

	out := core.CategoryBreakdown{
		Categories:    make(map[core.Category]core.CategoryShare),
		LifetimeTotal: core.Money{Cents: lifetime},
	}
	if lifetime <= 0 {
		return out
	}

	type share struct {
		category  core.Category
		units     int64
		remainder int64
	}
	shares := make([]share, 0, len(totals))
	var assigned int64
	for c, cents := range totals {
		scaled := cents * percentUnits
		s := share{category: c, units: scaled / lifetime, remainder: scaled % lifetime}
		assigned += s.units
		shares = append(shares, s)
	}

	sort.Slice(shares, func(i, j int) bool {
		if shares[i].remainder != shares[j].remainder {
			return shares[i].remainder > shares[j].remainder
		}
		return shares[i].category < shares[j].category
	})
	for i := int64(0); i < percentUnits-assigned; i++ {
		shares[i%int64(len(shares))].units++
	}

	for _, s := range shares {
		out.Categories[s.category] = core.CategoryShare{
			Total:      core.Money{Cents: totals[s.category]},
			Percentage: decimal.New(s.units, -2),
		}
	}
	return out
}

// MonthlyTrend buckets the history by calendar month, oldest month first.
// Months without expenses are omitted.
func MonthlyTrend(history []core.Expense) []core.MonthTotal {
	buckets := make(map[string]int64)
	for _, e := range history {
		buckets[e.Date.MonthKey()] += e.Amount.Cents
	}

	out := make([]core.MonthTotal, 0, len(buckets))
	for month, cents := range buckets {
		out = append(out, core.MonthTotal{Month: month, Total: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Anomalies flags expenses whose amount is above multiplier times the mean
// of all positive expenses. Fewer than two such expenses give no flags.
func Anomalies(history []core.Expense, multiplier decimal.Decimal) []core.AnomalyFlag {
	var (
		sum decimal.Decimal
		n   int64
	)
	for _, e := range history {
		if e.Amount.Cents > 0 {
			sum = sum.Add(e.Amount.Decimal())
			n++
		}
	}
	if n < 2 {
		return nil
	}

	mean := sum.Div(decimal.NewFromInt(n))
	threshold := mean.Mul(multiplier)

	var out []core.AnomalyFlag
	for _, e := range history {
		if e.Amount.Cents <= 0 || !e.Amount.Decimal().GreaterThan(threshold) {
			continue
		}
		out = append(out, core.AnomalyFlag{
			ExpenseID:   e.ID,
			Amount:      e.Amount,
			Description: e.Description,
			Reason: fmt.Sprintf("amount %s is more than %s times the average of %s",
				e.Amount, multiplier.String(), mean.StringFixed(2)),
		})
	}
	return out
}
