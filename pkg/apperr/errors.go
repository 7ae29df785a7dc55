// Package apperr defines the error taxonomy shared by the store, the
// lifecycle controller and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a missing or invalid input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced id that does not exist.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Collection, e.ID)
}

// InvalidTransitionError reports a state machine violation.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Entity, e.From, e.To)
}

// PersistenceError reports an unavailable durable store. Safe to retry.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DuplicateError reports a unique-key collision.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already registered", e.Field, e.Value)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound builds a NotFoundError.
func NotFound(collection, id string) error {
	return &NotFoundError{Collection: collection, ID: id}
}

// InvalidTransition builds an InvalidTransitionError.
func InvalidTransition[S ~string](entity string, from, to S) error {
	return &InvalidTransitionError{Entity: entity, From: string(from), To: string(to)}
}

// Persistence wraps a storage failure. A nil err returns nil.
func Persistence(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Key: key, Err: err}
}

// Duplicate builds a DuplicateError.
func Duplicate(field, value string) error {
	return &DuplicateError{Field: field, Value: value}
}

// Category groups errors by what the caller should do about them.
type Category string

const (
	CategoryInput    Category = "input"    // fix your input
	CategoryStale    Category = "stale"    // refresh and retry the intent
	CategoryRetry    Category = "retry"    // transient, try again
	CategoryInternal Category = "internal"
)

// CategoryOf classifies err.
func CategoryOf(err error) Category {
	var (
		ve *ValidationError
		de *DuplicateError
		ne *NotFoundError
		te *InvalidTransitionError
		pe *PersistenceError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &de):
		return CategoryInput
	case errors.As(err, &ne), errors.As(err, &te):
		return CategoryStale
	case errors.As(err, &pe):
		return CategoryRetry
	default:
		return CategoryInternal
	}
}

// UserMessage returns a short human-readable message for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		de *DuplicateError
		ne *NotFoundError
		te *InvalidTransitionError
	)
	switch {
	case errors.As(err, &ve):
		return "Please fix your input: " + strings.TrimPrefix(ve.Error(), "validation failed: ")
	case errors.As(err, &de):
		return "Please fix your input: " + de.Error()
	case errors.As(err, &ne):
		return "This record no longer exists. Refresh and try again."
	case errors.As(err, &te):
		return fmt.Sprintf("This %s is already %s. Refresh to see the latest state.", te.Entity, te.From)
	case CategoryOf(err) == CategoryRetry:
		return "Storage is temporarily unavailable. Please try again."
	default:
		return "Something went wrong."
	}
}
