package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while correlating an event.
//
// RuntimeError includes structured fields for diagnostics. Errors from the
// trigger repository are wrapped rather than converted, so errors.Is still
// finds ir.ErrConflict through a PERSIST_CONFLICT error.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Trigger is the "namespace/name" of the affected trigger.
	Trigger string

	// EventID identifies the event being processed.
	EventID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMatchAnomaly indicates a trigger that cannot be correlated
	// for an event: no conditions, a condition without filters, or a
	// condition whose correlation keys no filter could resolve.
	ErrCodeMatchAnomaly RuntimeErrorCode = "MATCH_ANOMALY"

	// ErrCodeExclusiveConflict indicates an event would open a second
	// context on an exclusive trigger.
	ErrCodeExclusiveConflict RuntimeErrorCode = "EXCLUSIVE_CONFLICT"

	// ErrCodePersistConflict indicates the trigger changed since it was read.
	ErrCodePersistConflict RuntimeErrorCode = "PERSIST_CONFLICT"

	// ErrCodeUnsupportedOutcome indicates a recognized outcome the engine
	// cannot perform yet.
	ErrCodeUnsupportedOutcome RuntimeErrorCode = "UNSUPPORTED_OUTCOME"

	// ErrCodeUnknownOutcome indicates an outcome variant the engine does
	// not know.
	ErrCodeUnknownOutcome RuntimeErrorCode = "UNKNOWN_OUTCOME"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Trigger != "" && e.EventID != "" {
		msg = fmt.Sprintf("%s (trigger=%s, event=%s)", msg, e.Trigger, e.EventID)
	} else if e.Trigger != "" {
		msg = fmt.Sprintf("%s (trigger=%s)", msg, e.Trigger)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsExclusiveConflict returns true if the error is an exclusive-mode conflict.
// Uses errors.As to handle wrapped errors.
func IsExclusiveConflict(err error) bool {
	return hasCode(err, ErrCodeExclusiveConflict)
}

// IsPersistConflict returns true if the error is an optimistic concurrency
// conflict on trigger persistence.
func IsPersistConflict(err error) bool {
	return hasCode(err, ErrCodePersistConflict)
}

// IsUnsupportedOutcome returns true if the outcome was recognized but
// cannot be performed.
func IsUnsupportedOutcome(err error) bool {
	return hasCode(err, ErrCodeUnsupportedOutcome)
}

// IsUnknownOutcome returns true if the outcome variant is not known.
func IsUnknownOutcome(err error) bool {
	return hasCode(err, ErrCodeUnknownOutcome)
}

// NewExclusiveConflictError creates a RuntimeError for a rejected second
// context on an exclusive trigger.
func NewExclusiveConflictError(trigger, eventID, openContext string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeExclusiveConflict,
		Message: "exclusive trigger already has an open correlation context",
		Trigger: trigger,
		EventID: eventID,
		Details: map[string]string{"open_context": openContext},
	}
}

// NewPersistConflictError wraps a repository conflict.
func NewPersistConflictError(trigger, eventID string, version int64, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodePersistConflict,
		Message: "trigger was modified concurrently",
		Trigger: trigger,
		EventID: eventID,
		Details: map[string]string{"resource_version": fmt.Sprintf("%d", version)},
		Err:     cause,
	}
}
