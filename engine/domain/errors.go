package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match these with errors.Is; every error returned by the
// engine wraps exactly one of them.
var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrAggregateUpdateFailed = errors.New("aggregate update failed")
	ErrStoreUnavailable      = errors.New("store unavailable")
)

// Specific failures, each wrapping one of the kinds above.
var (
	ErrClientNotFound  = fmt.Errorf("client %w", ErrNotFound)
	ErrVehicleNotFound = fmt.Errorf("vehicle %w", ErrNotFound)
	ErrTripNotFound    = fmt.Errorf("trip %w", ErrNotFound)
	ErrTripCompleted   = fmt.Errorf("trip already completed: %w", ErrConflict)
	ErrEmailTaken      = fmt.Errorf("client with this email already exists: %w", ErrConflict)
	ErrVehicleTaken    = fmt.Errorf("vehicle with this license plate or VIN already exists: %w", ErrConflict)
	ErrDuplicateID     = fmt.Errorf("identifier already in use: %w", ErrConflict)

	ErrRequired      = errors.New("required")
	ErrOutOfRange    = errors.New("out of range")
	ErrInvalidNumber = errors.New("not a finite number")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// Unavailable marks err as a store connectivity failure.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// IsTransient reports whether an operation that failed with err may succeed
// if retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// KindOf names the error kind of err for logs and metric labels.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAggregateUpdateFailed):
		return "aggregate_update_failed"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
