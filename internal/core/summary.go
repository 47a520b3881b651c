package core

import "github.com/shopspring/decimal"

// Budget status labels.
const (
	StatusOK        = "OK"
	StatusNearLimit = "Near Limit"
	StatusExceeded  = "Exceeded"
)

// LimitSpend is a budget limit joined with what was spent against it.
type LimitSpend struct {
	Category Category
	Limit    Money
	Spent    Money
}

// BudgetStatus is the derived state of one budget limit for a period.
type BudgetStatus struct {
	Category  Category `json:"category"`
	Limit     Money    `json:"limit"`
	Spent     Money    `json:"spent"`
	Remaining Money    `json:"remaining"`
	Status    string   `json:"status"`
}

// Summary is a high-level view of a user's expense history.
type Summary struct {
	TotalSpent       Money `json:"total_spent"`
	TransactionCount int   `json:"transaction_count"`
	AverageAmount    Money `json:"average_amount"`
}

// CategoryShare is one category's slice of lifetime spending.
type CategoryShare struct {
	Total Money `json:"total"`
	// Percentage has 2 decimals. Shares are apportioned by largest
	// remainder so a breakdown always sums to exactly 100.00; a share may
	// therefore sit 0.01 away from its own rounded value (three equal
	// categories give 33.34, 33.33 and 33.33).
	Percentage decimal.Decimal `json:"percentage"`
}

// CategoryBreakdown maps categories to their share of LifetimeTotal.
type CategoryBreakdown struct {
	Categories    map[Category]CategoryShare `json:"categories"`
	LifetimeTotal Money                      `json:"lifetime_total"`
}

// MonthTotal is the amount spent in one calendar month (YYYY-MM).
type MonthTotal struct {
	Month string `json:"month"`
	Total Money  `json:"total"`
}

// AnomalyFlag marks an expense that is far above the user's mean.
type AnomalyFlag struct {
	ExpenseID   int64  `json:"expense_id"`
	Amount      Money  `json:"amount"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}
