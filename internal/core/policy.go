package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy holds the tunable thresholds of the budget and analytics engine.
type Policy struct {
	// NearLimitRatio flags a budget as "Near Limit" when remaining/limit
	// drops below it.
	NearLimitRatio decimal.Decimal
	// AnomalyMultiplier flags expenses above this multiple of the mean.
	AnomalyMultiplier decimal.Decimal
	// HistoryWindow is how many recent expenses feed the forecast.
	HistoryWindow int
	// RecentWindow is how many recent expenses go into the advice context.
	RecentWindow int
}

func DefaultPolicy() Policy {
	return Policy{
		NearLimitRatio:    decimal.RequireFromString("0.2"),
		AnomalyMultiplier: decimal.NewFromInt(2),
		HistoryWindow:     100,
		RecentWindow:      10,
	}
}

func (p Policy) Validate() error {
	if p.NearLimitRatio.IsNegative() || p.NearLimitRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("near limit ratio %s must be between 0 and 1", p.NearLimitRatio)
	}
	if !p.AnomalyMultiplier.IsPositive() {
		return fmt.Errorf("anomaly multiplier %s must be positive", p.AnomalyMultiplier)
	}
	if p.HistoryWindow < 1 {
		return fmt.Errorf("history window %d must be at least 1", p.HistoryWindow)
	}
	if p.RecentWindow < 1 || p.RecentWindow > p.HistoryWindow {
		return fmt.Errorf("recent window %d must be between 1 and the history window %d", p.RecentWindow, p.HistoryWindow)
	}
	return nil
}
