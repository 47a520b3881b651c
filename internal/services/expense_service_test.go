package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finassist/internal/ai"
	"finassist/internal/core"
)

type fakeLedger struct {
	expenses []core.Expense
	budgets  []core.BudgetLimit
	err      error
}

func (f *fakeLedger) RecordExpense(ctx context.Context, e core.Expense) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}
	f.expenses = append(f.expenses, e)
	return int64(len(f.expenses)), nil
}

func (f *fakeLedger) UpsertBudgetLimit(ctx context.Context, b core.BudgetLimit) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	f.budgets = append(f.budgets, b)
	return int64(len(f.budgets)), nil
}

type fakeReports struct {
	invalidated []int64
}

func (f *fakeReports) Invalidate(ctx context.Context, userID int64) {
	f.invalidated = append(f.invalidated, userID)
}

type fakeEvents struct {
	published []int64
	err       error
}

func (f *fakeEvents) PublishExpenseRecorded(ctx context.Context, expenseID, userID int64) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, expenseID)
	return nil
}

// scriptedAI answers extraction and classification with fixed values.
type scriptedAI struct {
	ai.Offline
	extraction  ai.Extraction
	extractErr  error
	category    core.Category
	classifyErr error
	candidates  []core.Category
}

func (s *scriptedAI) ExtractTransaction(ctx context.Context, text string) (ai.Extraction, error) {
	return s.extraction, s.extractErr
}

func (s *scriptedAI) ClassifyCategory(ctx context.Context, amount core.Money, description string, candidates []core.Category) (core.Category, error) {
	s.candidates = candidates
	return s.category, s.classifyErr
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newService(l *fakeLedger, c ai.Collaborator, r *fakeReports, e *fakeEvents) *ExpenseService {
	s := NewExpenseService(l, c, r, e)
	s.now = func() time.Time { return fixedNow }
	return s
}

func sampleExpense() core.Expense {
	return core.Expense{
		UserID:      1,
		Amount:      core.Money{Cents: 1250},
		Category:    core.Groceries,
		Description: "Pingo Doce",
		Date:        core.NewDate(2025, 3, 10),
	}
}

func TestRecordExpense(t *testing.T) {
	tests := []struct {
		name       string
		ledgerErr  error
		publishErr error
		wantErr    error
		wantCached bool
	}{
		{name: "saved and announced", wantCached: true},
		{name: "publish failure is not an error", publishErr: errors.New("broker down"), wantCached: true},
		{name: "storage failure", ledgerErr: &core.StorageError{Op: "record expense", Err: errors.New("disk full")}, wantErr: core.ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLedger{err: tt.ledgerErr}
			r := &fakeReports{}
			e := &fakeEvents{err: tt.publishErr}
			s := newService(l, ai.Offline{}, r, e)

			id, err := s.RecordExpense(context.Background(), sampleExpense())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if len(r.invalidated) != 0 || len(e.published) != 0 {
					t.Fatalf("failed save must not invalidate or publish")
				}
				return
			}
			if err != nil || id != 1 {
				t.Fatalf("record: id=%d err=%v", id, err)
			}
			if tt.wantCached && (len(r.invalidated) != 1 || r.invalidated[0] != 1) {
				t.Fatalf("expected reports of user 1 to be invalidated, got %v", r.invalidated)
			}
			if tt.publishErr == nil && (len(e.published) != 1 || e.published[0] != id) {
				t.Fatalf("expected event for expense %d, got %v", id, e.published)
			}
		})
	}
}

func TestRecordExpenseWithoutOptionalCollaborators(t *testing.T) {
	s := NewExpenseService(&fakeLedger{}, ai.Offline{}, nil, nil)
	if _, err := s.RecordExpense(context.Background(), sampleExpense()); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestIngestText(t *testing.T) {
	c := &scriptedAI{
		extraction: ai.Extraction{Amount: decimal.RequireFromString("23.456"), Description: " Uber ride ", Date: "2025-03-12"},
		category:   core.Transport,
	}
	l := &fakeLedger{}
	e := &fakeEvents{}
	s := newService(l, c, &fakeReports{}, e)

	got, err := s.IngestText(context.Background(), 1, "Paid 23.456 EUR to Uber on 12/03")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got.ID != 1 || got.Amount.Cents != 2346 || got.Category != core.Transport {
		t.Fatalf("unexpected expense %+v", got)
	}
	if got.Description != "Uber ride" || got.Date.String() != "2025-03-12" {
		t.Fatalf("unexpected description or date: %+v", got)
	}
	if got.Notes != "Category classified by AI: Transport" {
		t.Fatalf("unexpected notes %q", got.Notes)
	}
	if len(c.candidates) != len(core.Categories()) {
		t.Fatalf("classifier should see every category, got %v", c.candidates)
	}
	if len(e.published) != 1 {
		t.Fatalf("ingested expense should be announced")
	}
}

func TestIngestTextFallbacks(t *testing.T) {
	tests := []struct {
		name         string
		ai           *scriptedAI
		wantCategory core.Category
		wantDesc     string
		wantDate     string
	}{
		{
			name: "classifier failure falls back to Other",
			ai: &scriptedAI{
				extraction:  ai.Extraction{Amount: decimal.NewFromInt(10), Description: "Cinema", Date: "2025-03-01"},
				classifyErr: core.ErrCollaboratorUnavailable,
			},
			wantCategory: core.Other,
			wantDesc:     "Cinema",
			wantDate:     "2025-03-01",
		},
		{
			name: "category outside the list falls back to Other",
			ai: &scriptedAI{
				extraction: ai.Extraction{Amount: decimal.NewFromInt(10), Description: "Cinema", Date: "2025-03-01"},
				category:   "Entertainment",
			},
			wantCategory: core.Other,
			wantDesc:     "Cinema",
			wantDate:     "2025-03-01",
		},
		{
			name: "unparseable date becomes today",
			ai: &scriptedAI{
				extraction: ai.Extraction{Amount: decimal.NewFromInt(10), Description: "Rent", Date: "yesterday"},
				category:   core.Housing,
			},
			wantCategory: core.Housing,
			wantDesc:     "Rent",
			wantDate:     "2025-03-14",
		},
		{
			name: "missing description gets a placeholder",
			ai: &scriptedAI{
				extraction: ai.Extraction{Amount: decimal.NewFromInt(10), Date: "2025-03-01"},
				category:   core.Other,
			},
			wantCategory: core.Other,
			wantDesc:     undescribed,
			wantDate:     "2025-03-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(&fakeLedger{}, tt.ai, nil, nil)
			got, err := s.IngestText(context.Background(), 1, "some text")
			if err != nil {
				t.Fatalf("ingest: %v", err)
			}
			if got.Category != tt.wantCategory || got.Description != tt.wantDesc || got.Date.String() != tt.wantDate {
				t.Fatalf("got category=%s desc=%q date=%s", got.Category, got.Description, got.Date)
			}
		})
	}
}

func TestIngestTextTruncatesDescription(t *testing.T) {
	long := strings.Repeat("é", 150)
	c := &scriptedAI{
		extraction: ai.Extraction{Amount: decimal.NewFromInt(5), Description: long, Date: "2025-03-01"},
		category:   core.Leisure,
	}
	s := newService(&fakeLedger{}, c, nil, nil)

	got, err := s.IngestText(context.Background(), 1, "text")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(got.Description) != 200 || !strings.HasPrefix(long, got.Description) {
		t.Fatalf("expected description cut on a rune boundary at 200 bytes, got %d bytes", len(got.Description))
	}
}

func TestIngestTextRejectsMissingAmount(t *testing.T) {
	tests := []struct {
		name string
		ai   ai.Collaborator
		text string
		want error
	}{
		{name: "zero amount", ai: &scriptedAI{extraction: ai.Extraction{Amount: decimal.Zero, Description: "x"}}, text: "hello", want: core.ErrInvalidAmount},
		{name: "amount out of range", ai: &scriptedAI{extraction: ai.Extraction{Amount: decimal.RequireFromString("184467440737095517.16"), Description: "x"}}, text: "hello", want: core.ErrInvalidAmount},
		{name: "blank text", ai: ai.Offline{}, text: "   ", want: core.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLedger{}
			s := newService(l, tt.ai, nil, nil)
			if _, err := s.IngestText(context.Background(), 1, tt.text); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(l.expenses) != 0 {
				t.Fatalf("nothing should be recorded")
			}
		})
	}
}

func TestSetMonthlyBudget(t *testing.T) {
	l := &fakeLedger{}
	s := newService(l, ai.Offline{}, nil, nil)

	if _, err := s.SetMonthlyBudget(context.Background(), 1, core.Groceries, core.Money{Cents: 40000}); err != nil {
		t.Fatalf("set budget: %v", err)
	}
	b := l.budgets[0]
	if b.Period.Start.String() != "2025-03-01" || b.Period.End.String() != "2025-04-01" {
		t.Fatalf("expected March period, got %s", b.Period)
	}

	if _, err := s.SetMonthlyBudget(context.Background(), 1, core.Groceries, core.Money{}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestIngestTextKeepsCollaboratorOutagesRetryable(t *testing.T) {
	tests := []struct {
		name string
		ai   ai.Collaborator
	}{
		{name: "offline", ai: ai.Offline{}},
		{name: "extraction error", ai: &scriptedAI{extractErr: fmt.Errorf("extract_transaction: %w: deadline exceeded", core.ErrCollaboratorUnavailable)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLedger{}
			s := newService(l, tt.ai, nil, nil)
			_, err := s.IngestText(context.Background(), 1, "Paid 12 EUR at Pingo Doce")
			if !errors.Is(err, core.ErrCollaboratorUnavailable) {
				t.Fatalf("expected collaborator unavailable, got %v", err)
			}
			if errors.Is(err, core.ErrValidation) {
				t.Fatalf("an outage must not look like invalid input: %v", err)
			}
			if len(l.expenses) != 0 {
				t.Fatalf("nothing should be recorded")
			}
		})
	}
}
