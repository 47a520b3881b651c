package google

import (
	"context"
	"errors"
	"strings"
	"testing"

	"finassist/internal/core"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-id"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-id", CredentialsFile: "/nonexistent/sa.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func sampleExpense() core.Expense {
	return core.Expense{
		ID:          42,
		UserID:      1,
		Amount:      core.Money{Cents: 1250},
		Category:    core.Groceries,
		Description: "Pingo Doce",
		Date:        core.NewDate(2025, 3, 10),
		Notes:       "Category classified by AI: Groceries",
	}
}

func TestClient_Append(t *testing.T) {
	var gotRange string
	var gotRow []any
	c := &Client{
		spreadsheetID: "test",
		sheetBase:     "Expenses",
		appendRow: func(ctx context.Context, rng string, row []any) (string, error) {
			gotRange, gotRow = rng, row
			return "'2025 Expenses'!A7:G7", nil
		},
	}

	ref, err := c.Append(context.Background(), sampleExpense())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "'2025 Expenses'!A7:G7" {
		t.Errorf("unexpected ref %q", ref)
	}
	if gotRange != "'2025 Expenses'!A:G" {
		t.Errorf("unexpected range %q", gotRange)
	}
	want := []any{"2025-03-10", "Pingo Doce", "12.50", "Groceries", "Category classified by AI: Groceries", int64(42), int64(1)}
	if len(gotRow) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(gotRow))
	}
	for i := range want {
		if gotRow[i] != want[i] {
			t.Errorf("column %d: got %v want %v", i, gotRow[i], want[i])
		}
	}
}

func TestClient_AppendErrors(t *testing.T) {
	t.Run("invalid expense is not sent", func(t *testing.T) {
		called := false
		c := &Client{sheetBase: "Expenses", appendRow: func(ctx context.Context, rng string, row []any) (string, error) {
			called = true
			return "", nil
		}}
		e := sampleExpense()
		e.Amount = core.Money{}
		if _, err := c.Append(context.Background(), e); !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
		if called {
			t.Fatal("invalid expense reached the API")
		}
	})

	t.Run("uninitialized service", func(t *testing.T) {
		c := &Client{sheetBase: "Expenses"}
		if _, err := c.Append(context.Background(), sampleExpense()); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("api failure", func(t *testing.T) {
		c := &Client{sheetBase: "Expenses", appendRow: func(ctx context.Context, rng string, row []any) (string, error) {
			return "", errors.New("quota exceeded")
		}}
		_, err := c.Append(context.Background(), sampleExpense())
		if err == nil || !strings.Contains(err.Error(), "2025 Expenses") {
			t.Fatalf("expected wrapped API error, got %v", err)
		}
	})
}

func TestClient_ListMonth(t *testing.T) {
	c := &Client{
		sheetBase: "Expenses",
		readRange: func(ctx context.Context, rng string) ([][]any, error) {
			if rng != "'2025 Expenses'!A:G" {
				t.Errorf("unexpected range %q", rng)
			}
			return [][]any{
				{"Date", "Description", "Amount", "Category", "Notes", "Expense ID", "User ID"},
				{"2025-03-10", "Pingo Doce", "12.50", "Groceries", "", "42", "1"},
				{"2025-03-11", "Cinema", "8,00", "Cinema"},
				{"2025-04-01", "Rent", "700.00", "Housing", "", "43", "1"},
				{"2025-03-12", "broken", "abc", "Other"},
				{},
			}, nil
		},
	}

	got, err := c.ListMonth(context.Background(), 2025, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(got), got)
	}
	if got[0].ID != 42 || got[0].UserID != 1 || got[0].Amount.Cents != 1250 || got[0].Category != core.Groceries {
		t.Errorf("unexpected first row %+v", got[0])
	}
	if got[1].Amount.Cents != 800 || got[1].Category != core.Other {
		t.Errorf("unknown category should map to Other: %+v", got[1])
	}

	if _, err := c.ListMonth(context.Background(), 2025, 13); err == nil {
		t.Error("expected invalid month error")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Expenses", 2025, "2025 Expenses"},
		{"  Expenses ", 2024, "2024 Expenses"},
		{"2023 Expenses", 2025, "2023 Expenses"},
		{"", 2025, ""},
		{"12345", 2025, "2025 12345"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Bob's 2025"); got != "'Bob''s 2025'" {
		t.Errorf("unexpected quoting %q", got)
	}
}
