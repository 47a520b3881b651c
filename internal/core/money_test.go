package core

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1e3", 0, false},
		{"0", 0, false},
		{"0.004", 0, false}, // rounds to zero
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%q expected validation error, got %v", tc.in, err)
			}
		}
	}
}

func TestMoneyFromDecimalRoundsHalfUp(t *testing.T) {
	cases := map[string]int64{
		"10.125": 1013,
		"10.124": 1012,
		"0.005":  1,
		"32.5":   3250,
	}
	for in, want := range cases {
		got, err := MoneyFromDecimal(decimal.RequireFromString(in))
		if err != nil || got.Cents != want {
			t.Fatalf("%s: expected %d cents, got %d (err=%v)", in, want, got.Cents, err)
		}
	}
}

func TestMoneyOutOfRange(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"92233720368547758.07", true}, // max int64 cents
		{"92233720368547758.08", false},
		{"184467440737095517.16", false}, // 2^64 cents, would wrap to 1.00
		{"1e30", false},
	}
	for _, tc := range cases {
		d := decimal.RequireFromString(tc.in)
		m, err := MoneyFromDecimal(d)
		if tc.ok {
			if err != nil || m.Cents != math.MaxInt64 {
				t.Fatalf("%s: expected max cents, got %d (err=%v)", tc.in, m.Cents, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: expected ErrInvalidAmount, got %d cents (err=%v)", tc.in, m.Cents, err)
		}
	}

	if m, err := ParseMoney("184467440737095517.16"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected overflow to be rejected, got %s", m)
	}
}

func TestMoneyString(t *testing.T) {
	if s := (Money{Cents: 1230}).String(); s != "12.30" {
		t.Fatalf("expected 12.30, got %s", s)
	}
	if s := (Money{Cents: -5}).String(); s != "-0.05" {
		t.Fatalf("expected -0.05, got %s", s)
	}
	b, err := (Money{Cents: 7}).MarshalText()
	if err != nil || string(b) != "0.07" {
		t.Fatalf("unexpected text %q err=%v", b, err)
	}
}
