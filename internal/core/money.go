// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. Anything derived from them
// (percentages, means, thresholds) goes through decimal.Decimal so no
// binary floating point touches a monetary value.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseMoney converts a decimal string to Money with half-up rounding to
// cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents, zero and malformed input are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234 cents
//	ParseMoney("12,345") -> 1235 cents (rounds up)
//	ParseMoney("12.344") -> 1234 cents (rounds down)
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || strings.ContainsAny(s, "+-eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m, err := MoneyFromDecimal(d)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// MoneyFromDecimal rounds d half-up to whole cents. Values that do not fit
// in int64 cents are rejected with ErrInvalidAmount.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return Money{}, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Money{Cents: cents.IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// String renders the amount with exactly two decimals, e.g. "12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalText keeps JSON and TOML output in the same "12.30" form.
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
