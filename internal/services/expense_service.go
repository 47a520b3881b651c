package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"finassist/internal/ai"
	"finassist/internal/core"
	applog "finassist/internal/log"
)

// Description used when extraction yields none.
const undescribed = "Description not extracted"

type Ledger interface {
	RecordExpense(ctx context.Context, e core.Expense) (int64, error)
	UpsertBudgetLimit(ctx context.Context, b core.BudgetLimit) (int64, error)
}

// ReportInvalidator drops cached analytics of a user after a write.
type ReportInvalidator interface {
	Invalidate(ctx context.Context, userID int64)
}

type EventPublisher interface {
	PublishExpenseRecorded(ctx context.Context, expenseID, userID int64) error
}

// ExpenseService orchestrates ledger writes, AI-assisted ingestion, cache
// invalidation and event publishing.
type ExpenseService struct {
	ledger  Ledger
	ai      ai.Collaborator
	reports ReportInvalidator
	events  EventPublisher
	now     func() time.Time
}

// NewExpenseService wires the service. reports and events may be nil.
func NewExpenseService(ledger Ledger, collaborator ai.Collaborator, reports ReportInvalidator, events EventPublisher) *ExpenseService {
	return &ExpenseService{
		ledger:  ledger,
		ai:      collaborator,
		reports: reports,
		events:  events,
		now:     time.Now,
	}
}

// RecordExpense saves e, then invalidates the user's reports and announces
// the new entry. Only the save can fail the call.
func (s *ExpenseService) RecordExpense(ctx context.Context, e core.Expense) (int64, error) {
	id, err := s.ledger.RecordExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("record expense for user %d: %w", e.UserID, err)
	}

	if s.reports != nil {
		s.reports.Invalidate(ctx, e.UserID)
	}

	if s.events != nil {
		if err := s.events.PublishExpenseRecorded(ctx, id, e.UserID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish expense recorded event",
				applog.FieldExpenseID, id, applog.FieldUserID, e.UserID, applog.FieldError, err)
			// Don't fail the request - expense is saved locally
		}
	}

	return id, nil
}

// IngestText extracts a transaction from free text, classifies it and
// records it. A text without a positive amount is rejected with
// core.ErrInvalidAmount. A failed extraction is returned as is (matching
// core.ErrCollaboratorUnavailable when the model is down) so the request
// can be retried; a failed classification falls back to Other.
func (s *ExpenseService) IngestText(ctx context.Context, userID int64, text string) (core.Expense, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.Expense{}, fmt.Errorf("%w: nothing to ingest", core.ErrValidation)
	}

	ex, err := s.ai.ExtractTransaction(ctx, text)
	if err != nil {
		// the text may still be valid; callers can retry once the model is back
		return core.Expense{}, fmt.Errorf("ingest for user %d: extract transaction: %w", userID, err)
	}

	amount, err := core.MoneyFromDecimal(ex.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("ingest for user %d: %w", userID, err)
	}
	if err := amount.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("ingest for user %d: no amount extracted: %w", userID, err)
	}

	description := strings.TrimSpace(ex.Description)
	if description == "" {
		description = undescribed
	}
	for len(description) > 200 {
		_, size := utf8.DecodeLastRuneInString(description)
		description = description[:len(description)-size]
	}

	date, err := core.ParseDate(ex.Date)
	if err != nil {
		date = core.DateOf(s.now())
	}

	category, err := s.ai.ClassifyCategory(ctx, amount, description, core.Categories())
	if err != nil || category.Validate() != nil {
		slog.WarnContext(ctx, "Classification failed, using fallback category",
			applog.FieldUserID, userID, "fallback", core.Other, applog.FieldError, err)
		category = core.Other
	}

	e := core.Expense{
		UserID:      userID,
		Amount:      amount,
		Category:    category,
		Description: description,
		Date:        date,
		Notes:       "Category classified by AI: " + string(category),
	}
	id, err := s.RecordExpense(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense ingested from text", applog.NewFields().
		WithOperation(applog.OpIngest).
		WithExpense(id, userID, string(category), amount.Cents).
		ToSlice()...)

	return e, nil
}

// SetBudget creates or replaces the user's limit for category over period.
func (s *ExpenseService) SetBudget(ctx context.Context, userID int64, category core.Category, limit core.Money, period core.Period) (int64, error) {
	id, err := s.ledger.UpsertBudgetLimit(ctx, core.BudgetLimit{
		UserID:   userID,
		Category: category,
		Limit:    limit,
		Period:   period,
	})
	if err != nil {
		return 0, fmt.Errorf("set budget for user %d category %s period %s: %w", userID, category, period, err)
	}
	return id, nil
}

// SetMonthlyBudget sets the limit for the current calendar month.
func (s *ExpenseService) SetMonthlyBudget(ctx context.Context, userID int64, category core.Category, limit core.Money) (int64, error) {
	return s.SetBudget(ctx, userID, category, limit, core.MonthPeriod(s.now()))
}
