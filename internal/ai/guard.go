package ai

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"finassist/internal/core"
	applog "finassist/internal/log"
)

// Guard bounds every call to the wrapped collaborator with a timeout and
// turns any failure into the documented fallback value. The returned error
// always matches core.ErrCollaboratorUnavailable so callers can annotate
// their results instead of aborting.
type Guard struct {
	next    Collaborator
	timeout time.Duration
	logger  *applog.Logger
}

var _ Collaborator = (*Guard)(nil)

// NewGuard wraps next. A non-positive timeout leaves calls bounded only by
// the caller's context.
func NewGuard(next Collaborator, timeout time.Duration, logger *applog.Logger) *Guard {
	return &Guard{next: next, timeout: timeout, logger: logger}
}

func (g *Guard) ExtractTransaction(ctx context.Context, text string) (Extraction, error) {
	fallback := Extraction{Amount: decimal.Zero, Description: OfflineDescription}
	return guarded(ctx, g, "extract_transaction", fallback, func(ctx context.Context) (Extraction, error) {
		return g.next.ExtractTransaction(ctx, text)
	})
}

// ClassifyCategory also rejects answers outside candidates.
func (g *Guard) ClassifyCategory(ctx context.Context, amount core.Money, description string, candidates []core.Category) (core.Category, error) {
	return guarded(ctx, g, "classify_category", core.Other, func(ctx context.Context) (core.Category, error) {
		c, err := g.next.ClassifyCategory(ctx, amount, description, candidates)
		if err != nil {
			return "", err
		}
		if !slices.Contains(candidates, c) {
			return "", fmt.Errorf("category %q is not one of the candidates", c)
		}
		return c, nil
	})
}

func (g *Guard) ForecastSpending(ctx context.Context, history []HistoryEntry, period string) (Forecast, error) {
	fallback := Forecast{Justification: OfflineJustification}
	return guarded(ctx, g, "forecast_spending", fallback, func(ctx context.Context) (Forecast, error) {
		return g.next.ForecastSpending(ctx, history, period)
	})
}

func (g *Guard) GenerateAdvice(ctx context.Context, ac AdviceContext) (string, error) {
	return guarded(ctx, g, "generate_advice", OfflineAdvice, func(ctx context.Context) (string, error) {
		return g.next.GenerateAdvice(ctx, ac)
	})
}

func (g *Guard) Answer(ctx context.Context, question string, ac AssistantContext) (string, error) {
	return guarded(ctx, g, "answer", OfflineAnswer, func(ctx context.Context) (string, error) {
		return g.next.Answer(ctx, question, ac)
	})
}

// guarded runs fn in its own goroutine so a collaborator that ignores ctx
// still cannot hold the caller past the deadline.
func guarded[T any](ctx context.Context, g *Guard, op string, fallback T, fn func(context.Context) (T, error)) (T, error) {
	var cancel context.CancelFunc
	if g.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return fallback, g.unavailable(ctx, op, r.err, start)
		}
		g.logger.DebugContext(ctx, "AI call completed",
			applog.FieldOperation, op,
			applog.FieldDuration, time.Since(start).Milliseconds())
		return r.v, nil
	case <-ctx.Done():
		return fallback, g.unavailable(ctx, op, ctx.Err(), start)
	}
}

func (g *Guard) unavailable(ctx context.Context, op string, err error, start time.Time) error {
	errType := applog.ErrorTypeNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		errType = applog.ErrorTypeTimeout
	}
	g.logger.WarnContext(ctx, "AI collaborator unavailable, using fallback",
		applog.FieldOperation, op,
		applog.FieldErrorType, errType,
		applog.FieldDuration, time.Since(start).Milliseconds(),
		applog.FieldError, err)

	if errors.Is(err, core.ErrCollaboratorUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrCollaboratorUnavailable, err)
}
