package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	Groceries  Category = "Groceries"
	Transport  Category = "Transport"
	Restaurant Category = "Restaurant"
	Leisure    Category = "Leisure"
	Housing    Category = "Housing"
	Other      Category = "Other" // catch-all, also the classification fallback
)

const dateLayout = "2006-01-02"

type (
	Category string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Period is a half-open date range [Start, End).
	Period struct {
		Start Date `json:"start"`
		End   Date `json:"end"`
	}

	User struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"created_at"`
	}

	Expense struct {
		ID          int64     `json:"id"`
		UserID      int64     `json:"user_id"`
		Amount      Money     `json:"amount"`
		Category    Category  `json:"category"`
		Description string    `json:"description"` // vendor or free-text description
		Date        Date      `json:"date"`
		Notes       string    `json:"notes,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}

	BudgetLimit struct {
		ID        int64     `json:"id"`
		UserID    int64     `json:"user_id"`
		Category  Category  `json:"category"`
		Limit     Money     `json:"limit"`
		Period    Period    `json:"period"`
		CreatedAt time.Time `json:"created_at"`
	}
)

// Categories returns the fixed category set in display order.
func Categories() []Category {
	return []Category{Groceries, Transport, Restaurant, Leisure, Housing, Other}
}

// ParseCategory matches s against the category set, ignoring case and
// surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) Validate() error {
	for _, known := range Categories() {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidCategory, string(c))
}

func (c Category) String() string {
	return string(c)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// String formats the date as YYYY-MM-DD, the storage format.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON renders the date as "YYYY-MM-DD" instead of a timestamp.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// MonthKey returns the YYYY-MM bucket the date falls in.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// MonthPeriod returns the calendar month containing t as [first day, first
// day of next month).
func MonthPeriod(t time.Time) Period {
	start := NewDate(t.Year(), int(t.Month()), 1)
	return Period{Start: start, End: Date{Time: start.AddDate(0, 1, 0)}}
}

func (p Period) Validate() error {
	if err := p.Start.Validate(); err != nil {
		return fmt.Errorf("%w: start: %v", ErrInvalidPeriod, err)
	}
	if err := p.End.Validate(); err != nil {
		return fmt.Errorf("%w: end: %v", ErrInvalidPeriod, err)
	}
	if !p.End.After(p.Start.Time) {
		return fmt.Errorf("%w: end %s must be after start %s", ErrInvalidPeriod, p.End, p.Start)
	}
	return nil
}

// Contains reports whether d falls in [Start, End).
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start.Time) && d.Before(p.End.Time)
}

func (p Period) String() string {
	return p.Start.String() + ".." + p.End.String()
}

func (e Expense) Validate() error {
	if e.UserID <= 0 {
		return ErrInvalidUser
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	return e.Category.Validate()
}

func (b BudgetLimit) Validate() error {
	if b.UserID <= 0 {
		return ErrInvalidUser
	}
	if err := b.Category.Validate(); err != nil {
		return err
	}
	if err := b.Limit.Validate(); err != nil {
		return err
	}
	return b.Period.Validate()
}
