package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrDomainInvariant marks programming errors such as indexing past the
	// end of a route. It is never swallowed.
	ErrDomainInvariant = errors.New("domain invariant violated")
	ErrInvalidModel    = errors.New("invalid model")
	ErrUnknownStation  = errors.New("unknown station")
	ErrInvalidTime     = errors.New("invalid time")
	ErrEmptyAgentType  = errors.New("empty agent type")
)

// AbsentRoutePointError is returned when a route point index is out of range.
type AbsentRoutePointError struct {
	RouteID string
	Index   int
}

func (e *AbsentRoutePointError) Error() string {
	return fmt.Sprintf("absent route point #%d in %s route", e.Index, e.RouteID)
}

func (e *AbsentRoutePointError) Unwrap() error { return ErrDomainInvariant }

// AbsentPathItemError is returned when a path item index is out of range.
type AbsentPathItemError struct {
	Index int
}

func (e *AbsentPathItemError) Error() string {
	return fmt.Sprintf("absent path item #%d", e.Index)
}

func (e *AbsentPathItemError) Unwrap() error { return ErrDomainInvariant }

// ValidationError wraps a sentinel with the offending entity.
type ValidationError struct {
	Entity  string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Entity, e.Value)
}

func (e *ValidationError) Unwrap() []error { return []error{e.Wrapped, ErrInvalidModel} }

// NewValidationError creates a ValidationError.
func NewValidationError(entity, value string, wrapped error) *ValidationError {
	return &ValidationError{Entity: entity, Value: value, Wrapped: wrapped}
}
