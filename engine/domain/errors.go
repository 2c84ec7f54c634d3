package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the pipeline.
var (
	ErrMissingVIN         = errors.New("observation has no VIN")
	ErrInvalidVIN         = errors.New("invalid VIN")
	ErrHistoryUnavailable = errors.New("vin history unavailable")
	ErrAmbiguousAlias     = errors.New("ambiguous dealership alias")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// HistoryError marks a per-VIN history lookup failure. It wraps
// ErrHistoryUnavailable so callers can collect and retry the failed subset;
// the engine never converts it into a process or skip verdict.
type HistoryError struct {
	VIN   string
	Cause error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("vin %s: %v: %v", e.VIN, ErrHistoryUnavailable, e.Cause)
}

func (e *HistoryError) Unwrap() []error { return []error{ErrHistoryUnavailable, e.Cause} }
