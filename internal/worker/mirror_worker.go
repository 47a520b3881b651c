package worker

import (
	"context"
	"fmt"
	"log/slog"

	"finassist/internal/amqp"
	"finassist/internal/core"
	applog "finassist/internal/log"
	"finassist/internal/sheets"
)

// ExpenseReader loads a ledger entry by id.
type ExpenseReader interface {
	FetchExpense(ctx context.Context, id int64) (core.Expense, bool, error)
}

// MirrorWorker copies recorded expenses to the spreadsheet mirror.
type MirrorWorker struct {
	ledger ExpenseReader
	mirror sheets.ExpenseMirror
}

func NewMirrorWorker(ledger ExpenseReader, mirror sheets.ExpenseMirror) *MirrorWorker {
	return &MirrorWorker{ledger: ledger, mirror: mirror}
}

// HandleExpenseRecorded appends the announced expense to the mirror. An
// expense missing from the ledger is rejected; mirror failures are returned
// for redelivery.
func (w *MirrorWorker) HandleExpenseRecorded(ctx context.Context, msg *amqp.ExpenseRecorded) error {
	slog.InfoContext(ctx, "Processing expense recorded event",
		applog.FieldMessageID, msg.ID,
		applog.FieldExpenseID, msg.ExpenseID)

	e, found, err := w.ledger.FetchExpense(ctx, msg.ExpenseID)
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}
	if !found {
		slog.WarnContext(ctx, "Recorded expense missing from ledger",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldExpenseID, msg.ExpenseID,
			applog.FieldErrorType, applog.ErrorTypeNotFound)
		return fmt.Errorf("%w: expense %d not found", amqp.ErrReject, msg.ExpenseID)
	}

	ref, err := w.mirror.Append(ctx, e)
	if err != nil {
		slog.WarnContext(ctx, "Mirror append failed", applog.NewFields().
			WithComponent(applog.ComponentWorker).
			WithMessage(msg.ID).
			WithOperation(applog.OpAppend).
			WithError(err, applog.ErrorTypeNetwork).
			ToSlice()...)
		return fmt.Errorf("append to sheets: %w", err)
	}

	fields := applog.NewFields().
		WithComponent(applog.ComponentWorker).
		WithMessage(msg.ID).
		WithOperation(applog.OpAppend).
		WithExpense(e.ID, e.UserID, string(e.Category), e.Amount.Cents)
	fields[applog.FieldSheetsRef] = ref
	slog.InfoContext(ctx, "Successfully mirrored expense", fields.ToSlice()...)
	return nil
}
