package budget

import (
	"context"
	"errors"
	"testing"

	"finassist/internal/core"
)

type fakeSpend struct {
	rows  []core.LimitSpend
	err   error
	calls int
}

func (f *fakeSpend) SpendAgainstLimits(ctx context.Context, userID int64, start, end core.Date) ([]core.LimitSpend, error) {
	f.calls++
	return f.rows, f.err
}

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func TestStatusThresholds(t *testing.T) {
	near := core.DefaultPolicy().NearLimitRatio
	cases := []struct {
		limit, spent int64
		want         string
		remaining    int64
	}{
		{10000, 5000, core.StatusOK, 5000},
		{10000, 8000, core.StatusOK, 2000}, // exactly 20% left is not below the ratio
		{10000, 8500, core.StatusNearLimit, 1500},
		{10000, 10000, core.StatusNearLimit, 0},
		{10000, 12000, core.StatusExceeded, -2000},
		{10000, 0, core.StatusOK, 10000},
		{0, 0, core.StatusOK, 0},
		{0, 1, core.StatusExceeded, -1},
	}
	for _, tc := range cases {
		got := Status(core.LimitSpend{Category: core.Groceries, Limit: money(tc.limit), Spent: money(tc.spent)}, near)
		if got.Status != tc.want || got.Remaining.Cents != tc.remaining {
			t.Fatalf("limit=%d spent=%d: expected %s/%d, got %s/%d",
				tc.limit, tc.spent, tc.want, tc.remaining, got.Status, got.Remaining.Cents)
		}
	}
}

func TestEvaluateSortsAndKeepsZeroSpend(t *testing.T) {
	store := &fakeSpend{rows: []core.LimitSpend{
		{Category: core.Transport, Limit: money(5000), Spent: money(0)},
		{Category: core.Groceries, Limit: money(10000), Spent: money(8500)},
		{Category: core.Leisure, Limit: money(3000), Spent: money(3600)},
	}}
	ev := NewEvaluator(store, core.DefaultPolicy())

	out, err := ev.Evaluate(context.Background(), 1, core.NewDate(2025, 5, 1), core.NewDate(2025, 6, 1))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(out))
	}
	want := []struct {
		cat    core.Category
		status string
	}{
		{core.Groceries, core.StatusNearLimit},
		{core.Leisure, core.StatusExceeded},
		{core.Transport, core.StatusOK},
	}
	for i, w := range want {
		if out[i].Category != w.cat || out[i].Status != w.status {
			t.Fatalf("position %d: expected %s/%s, got %s/%s", i, w.cat, w.status, out[i].Category, out[i].Status)
		}
	}
	if out[2].Spent.Cents != 0 || out[2].Remaining.Cents != 5000 {
		t.Fatalf("zero-spend limit mangled: %+v", out[2])
	}
}

func TestEvaluateNoLimits(t *testing.T) {
	ev := NewEvaluator(&fakeSpend{}, core.DefaultPolicy())
	out, err := ev.Evaluate(context.Background(), 1, core.NewDate(2025, 5, 1), core.NewDate(2025, 6, 1))
	if err != nil || len(out) != 0 {
		t.Fatalf("expected empty result, got %+v err=%v", out, err)
	}
}

func TestEvaluateInvalidPeriodSkipsStore(t *testing.T) {
	store := &fakeSpend{}
	ev := NewEvaluator(store, core.DefaultPolicy())
	_, err := ev.Evaluate(context.Background(), 1, core.NewDate(2025, 6, 1), core.NewDate(2025, 5, 1))
	if !errors.Is(err, core.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store must not be queried for an invalid period")
	}
}

func TestEvaluatePropagatesStorageError(t *testing.T) {
	store := &fakeSpend{err: &core.StorageError{Op: "spend against limits", Err: errors.New("disk I/O error")}}
	ev := NewEvaluator(store, core.DefaultPolicy())
	_, err := ev.Evaluate(context.Background(), 1, core.NewDate(2025, 5, 1), core.NewDate(2025, 6, 1))
	if !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", store.calls)
	}
}
