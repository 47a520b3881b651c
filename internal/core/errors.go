package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrStorage                 = errors.New("storage unavailable")
	ErrCollaboratorUnavailable = errors.New("ai collaborator unavailable")
)

// Validation failures. Each one matches ErrValidation via errors.Is.
var (
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidCategory  = fmt.Errorf("%w: invalid category", ErrValidation)
	ErrInvalidDate      = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidPeriod    = fmt.Errorf("%w: invalid period", ErrValidation)
	ErrInvalidUser      = fmt.Errorf("%w: invalid user", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
)

// StorageError reports a failed ledger operation. Error() names the
// operation only; the driver error stays reachable through Unwrap for logs.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable: %s", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
