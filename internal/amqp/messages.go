package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoutingKeyExpenseRecorded is the routing key of ExpenseRecorded events.
const RoutingKeyExpenseRecorded = "expense.recorded"

// IngestRequest asks the worker to turn a free-text transaction notice
// (bank SMS, receipt text, email) into a ledger entry for UserID.
type IngestRequest struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func NewIngestRequest(userID int64, text string) *IngestRequest {
	return &IngestRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func (m *IngestRequest) Validate() error {
	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("invalid message id %q: %w", m.ID, err)
	}
	if m.UserID <= 0 {
		return fmt.Errorf("invalid user id %d", m.UserID)
	}
	if strings.TrimSpace(m.Text) == "" {
		return errors.New("empty text")
	}
	return nil
}

// ExpenseRecorded announces a new ledger entry. It carries ids only; the
// consumer reads the expense back from the ledger.
type ExpenseRecorded struct {
	ID        string    `json:"id"`
	ExpenseID int64     `json:"expense_id"`
	UserID    int64     `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseRecorded(expenseID, userID int64) *ExpenseRecorded {
	return &ExpenseRecorded{
		ID:        uuid.NewString(),
		ExpenseID: expenseID,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseRecorded) Validate() error {
	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("invalid message id %q: %w", m.ID, err)
	}
	if m.ExpenseID <= 0 {
		return fmt.Errorf("invalid expense id %d", m.ExpenseID)
	}
	return nil
}

type validator interface {
	Validate() error
}

// decode unmarshals and validates a message body.
func decode[T any, PT interface {
	*T
	validator
}](data []byte) (*T, error) {
	msg := PT(new(T))
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return (*T)(msg), nil
}

func marshal(msg any) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return body, nil
}
