package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a sub-agent execution is driven
	// into a state its current state does not allow.
	ErrInvalidTransition = errors.New("invalid execution state transition")

	// ErrDuplicateID is returned by stores asked to create a record whose id
	// already exists.
	ErrDuplicateID = errors.New("duplicate id")
)

// ValidationError reports a package that violates its schema contract. It
// always names the offending fields so callers can fix and resubmit.
type ValidationError struct {
	Fields []string `json:"fields"`
	Errors []string `json:"errors"`
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []string{field}, Errors: []string{fmt.Sprintf("%s: %s", field, message)}}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("validation failed for fields [%s]", strings.Join(e.Fields, ", "))
	}
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// HasField reports whether field is among the offending fields.
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// ParseError reports serialized input that could not be decoded at all. It is
// deliberately distinct from ValidationError: a ParseError means a broken
// transport, a ValidationError a broken contract.
type ParseError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse %s: malformed input", e.Source)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying decoder error.
func (e *ParseError) Unwrap() error { return e.Err }

// InjectionError reports a context package that cannot be injected into a
// sub-agent. It is raised before any side effect happens.
type InjectionError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *InjectionError) Error() string {
	return fmt.Sprintf("context injection failed: %s %s", e.Field, e.Reason)
}
