package worker

import (
	"context"
	"errors"
	"testing"

	"finassist/internal/ai"
	"finassist/internal/amqp"
	"finassist/internal/core"
	"finassist/internal/services"
	"finassist/internal/sheets/memory"
)

type fakeIngester struct {
	err    error
	userID int64
	text   string
}

func (f *fakeIngester) IngestText(ctx context.Context, userID int64, text string) (core.Expense, error) {
	f.userID, f.text = userID, text
	if f.err != nil {
		return core.Expense{}, f.err
	}
	return core.Expense{ID: 9, UserID: userID, Amount: core.Money{Cents: 500}, Category: core.Other}, nil
}

func TestHandleIngestRequest(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantErr    bool
		wantReject bool
	}{
		{name: "recorded"},
		{name: "no amount is rejected", err: core.ErrInvalidAmount, wantErr: true, wantReject: true},
		{name: "storage failure is retried", err: &core.StorageError{Op: "record expense", Err: errors.New("locked")}, wantErr: true},
		{name: "collaborator outage is retried", err: core.ErrCollaboratorUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeIngester{err: tt.err}
			w := NewIngestWorker(svc)
			msg := amqp.NewIngestRequest(3, "Paid 5 EUR")

			err := w.HandleIngestRequest(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error %v", err)
			}
			if errors.Is(err, amqp.ErrReject) != tt.wantReject {
				t.Fatalf("reject = %v, want %v (err %v)", errors.Is(err, amqp.ErrReject), tt.wantReject, err)
			}
			if svc.userID != 3 || svc.text != "Paid 5 EUR" {
				t.Fatalf("request not forwarded: %+v", svc)
			}
		})
	}
}

type recordingLedger struct {
	recorded []core.Expense
}

func (l *recordingLedger) RecordExpense(ctx context.Context, e core.Expense) (int64, error) {
	l.recorded = append(l.recorded, e)
	return int64(len(l.recorded)), nil
}

func (l *recordingLedger) UpsertBudgetLimit(ctx context.Context, b core.BudgetLimit) (int64, error) {
	return 1, nil
}

func TestHandleIngestRequestRequeuesWhileAIOffline(t *testing.T) {
	ledger := &recordingLedger{}
	w := NewIngestWorker(services.NewExpenseService(ledger, ai.Offline{}, nil, nil))

	err := w.HandleIngestRequest(context.Background(), amqp.NewIngestRequest(1, "Paid 12.50 EUR at Pingo Doce"))
	if err == nil {
		t.Fatal("expected an error while the collaborator is offline")
	}
	if errors.Is(err, amqp.ErrReject) {
		t.Fatalf("request would be dropped instead of requeued: %v", err)
	}
	if !errors.Is(err, core.ErrCollaboratorUnavailable) {
		t.Fatalf("expected collaborator unavailable, got %v", err)
	}
	if len(ledger.recorded) != 0 {
		t.Fatalf("nothing should be recorded, got %+v", ledger.recorded)
	}
}

type fakeLedger struct {
	expenses map[int64]core.Expense
	err      error
}

func (f *fakeLedger) FetchExpense(ctx context.Context, id int64) (core.Expense, bool, error) {
	if f.err != nil {
		return core.Expense{}, false, f.err
	}
	e, ok := f.expenses[id]
	return e, ok, nil
}

type failingMirror struct{}

func (failingMirror) Append(ctx context.Context, e core.Expense) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestHandleExpenseRecorded(t *testing.T) {
	stored := core.Expense{
		ID:          7,
		UserID:      1,
		Amount:      core.Money{Cents: 1999},
		Category:    core.Restaurant,
		Description: "Dinner",
		Date:        core.NewDate(2025, 6, 2),
	}
	ledger := &fakeLedger{expenses: map[int64]core.Expense{7: stored}}

	t.Run("mirrors stored expense", func(t *testing.T) {
		mirror := memory.New()
		w := NewMirrorWorker(ledger, mirror)
		if err := w.HandleExpenseRecorded(context.Background(), amqp.NewExpenseRecorded(7, 1)); err != nil {
			t.Fatalf("handle: %v", err)
		}
		rows, _ := mirror.ListMonth(context.Background(), 2025, 6)
		if len(rows) != 1 || rows[0].ID != 7 || rows[0].Amount.Cents != 1999 {
			t.Fatalf("unexpected mirror rows %+v", rows)
		}
	})

	t.Run("missing expense is rejected", func(t *testing.T) {
		mirror := memory.New()
		w := NewMirrorWorker(ledger, mirror)
		err := w.HandleExpenseRecorded(context.Background(), amqp.NewExpenseRecorded(99, 1))
		if !errors.Is(err, amqp.ErrReject) {
			t.Fatalf("expected reject, got %v", err)
		}
		if mirror.Len() != 0 {
			t.Fatal("nothing should be mirrored")
		}
	})

	t.Run("storage failure is retried", func(t *testing.T) {
		w := NewMirrorWorker(&fakeLedger{err: &core.StorageError{Op: "fetch expense", Err: errors.New("locked")}}, memory.New())
		err := w.HandleExpenseRecorded(context.Background(), amqp.NewExpenseRecorded(7, 1))
		if err == nil || errors.Is(err, amqp.ErrReject) || !errors.Is(err, core.ErrStorage) {
			t.Fatalf("expected retryable storage error, got %v", err)
		}
	})

	t.Run("mirror failure is retried", func(t *testing.T) {
		w := NewMirrorWorker(ledger, failingMirror{})
		err := w.HandleExpenseRecorded(context.Background(), amqp.NewExpenseRecorded(7, 1))
		if err == nil || errors.Is(err, amqp.ErrReject) {
			t.Fatalf("expected retryable error, got %v", err)
		}
	})
}
