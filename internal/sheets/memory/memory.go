// Package memory is an in-process expense mirror for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finassist/internal/core"
	ports "finassist/internal/sheets"
)

type Store struct {
	mu    sync.Mutex
	items []core.Expense
}

var (
	_ ports.ExpenseMirror = (*Store)(nil)
	_ ports.MirrorLister  = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// Append stores the expense and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, e)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// ListMonth returns the mirrored expenses dated in year and month, in
// append order.
func (s *Store) ListMonth(_ context.Context, year int, month int) ([]core.Expense, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month: %d", month)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.items {
		if e.Date.Year() == year && e.Date.Month() == month {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len reports how many rows were mirrored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
