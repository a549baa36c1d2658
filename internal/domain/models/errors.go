package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity indicates a non-positive movement or line quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidTransition indicates a workflow guard rejected the requested state change.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrPreconditionFailed is reported when an operation requires an exact current status.
	ErrPreconditionFailed = ErrInvalidTransition
	// ErrNotFound indicates a referenced material, request or allocation is absent.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a debit larger than the quantity on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPersistence wraps failures of the underlying document store.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidInput indicates a structurally invalid payload.
	ErrInvalidInput = errors.New("invalid input")
)

// TransitionError describes a rejected state change on a workflow entity.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	Op     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from status %q", e.Entity, e.ID, e.Op, e.From)
}

// Is reports ErrInvalidTransition so callers can use errors.Is.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
