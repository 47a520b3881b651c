package sheets

import (
	"context"

	"finassist/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseMirror copies ledger entries to an external spreadsheet. The
	// ledger stays authoritative; the mirror is append-only.
	ExpenseMirror interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	// MirrorLister reads back the rows mirrored for a calendar month.
	MirrorLister interface {
		ListMonth(ctx context.Context, year int, month int) ([]core.Expense, error)
	}
)
