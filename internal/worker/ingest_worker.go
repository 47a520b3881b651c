package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finassist/internal/amqp"
	"finassist/internal/core"
	applog "finassist/internal/log"
)

// Ingester turns free text into a recorded expense.
type Ingester interface {
	IngestText(ctx context.Context, userID int64, text string) (core.Expense, error)
}

// IngestWorker handles ingest requests delivered over AMQP.
type IngestWorker struct {
	service Ingester
}

func NewIngestWorker(service Ingester) *IngestWorker {
	return &IngestWorker{service: service}
}

// HandleIngestRequest records the expense described by msg. Input the
// service rejects as invalid is dropped with amqp.ErrReject; anything else
// is returned so the message is redelivered.
func (w *IngestWorker) HandleIngestRequest(ctx context.Context, msg *amqp.IngestRequest) error {
	slog.InfoContext(ctx, "Processing ingest request",
		applog.FieldMessageID, msg.ID,
		applog.FieldUserID, msg.UserID)

	start := time.Now()
	e, err := w.service.IngestText(ctx, msg.UserID, msg.Text)
	if err != nil {
		errType := applog.ErrorTypeNetwork
		switch {
		case errors.Is(err, core.ErrValidation):
			errType = applog.ErrorTypeValidation
		case errors.Is(err, core.ErrStorage):
			errType = applog.ErrorTypeDatabase
		}
		slog.WarnContext(ctx, "Ingest request failed", applog.NewFields().
			WithComponent(applog.ComponentWorker).
			WithMessage(msg.ID).
			WithOperation(applog.OpIngest).
			WithDuration(time.Since(start).Milliseconds(), false).
			WithError(err, errType).
			ToSlice()...)

		if errType == applog.ErrorTypeValidation {
			return fmt.Errorf("%w: %w", amqp.ErrReject, err)
		}
		return fmt.Errorf("ingest text: %w", err)
	}

	slog.InfoContext(ctx, "Ingest request recorded", applog.NewFields().
		WithComponent(applog.ComponentWorker).
		WithMessage(msg.ID).
		WithOperation(applog.OpIngest).
		WithExpense(e.ID, e.UserID, string(e.Category), e.Amount.Cents).
		WithDuration(time.Since(start).Milliseconds(), true).
		ToSlice()...)
	return nil
}
