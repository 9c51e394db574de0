package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDate             = errors.New("date cannot be zero")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidInstallmentCount = errors.New("installment count must be at least 1")
	ErrUnknownCurrency         = errors.New("unknown currency")
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrInvalidPaymentMethod    = errors.New("invalid payment method")
	ErrInvalidStatus           = errors.New("invalid installment status")
	ErrEmptyEnrollment         = errors.New("empty enrollment reference")
	ErrUnknownEnrollment       = errors.New("enrollment does not exist")
	ErrPaymentDateNotPaid      = errors.New("payment date requires paid status")
	ErrNotesTooLong            = errors.New("notes too long (max 2000 characters)")
	ErrUnbalancedInstallments  = errors.New("installment amounts no longer match ledger total")
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("ledger version conflict")
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps err for the given field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// NotFoundError is returned when a ledger, installment or enrollment id
// does not exist. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError signals that a ledger was regenerated after the caller read it.
type ConflictError struct {
	LedgerID string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ledger %s: expected version %d, found %d", e.LedgerID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ConsistencyWarning describes drift between a ledger total and the sum of
// its installments. It is returned next to a successful edit, never as an error.
type ConsistencyWarning struct {
	LedgerID       string
	Total          Money
	InstallmentSum Money
	Drift          Money
}

func (w ConsistencyWarning) String() string {
	return fmt.Sprintf("ledger %s: installments sum to %s but total is %s (drift %s)",
		w.LedgerID, w.InstallmentSum.String(), w.Total.String(), w.Drift.String())
}
