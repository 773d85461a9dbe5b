package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the registry.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned when an event reaches a session that was torn down.
var ErrSessionClosed = errors.New("session closed")

// ErrSubmissionInFlight is returned when an email is submitted while a write is outstanding.
var ErrSubmissionInFlight = errors.New("submission already in flight")

// ErrNotAtResults is returned when an email is submitted before the Results step.
var ErrNotAtResults = errors.New("email can only be submitted on the results step")

// ErrAlreadySubmitted is returned when a session that already saved its answers submits again.
var ErrAlreadySubmitted = errors.New("survey already submitted")

// ErrMalformedRecord is returned by stores that read back a value they cannot decode.
var ErrMalformedRecord = errors.New("malformed record")

// ErrorKind classifies failures crossing the persistence boundary.
type ErrorKind string

const (
	// KindValidation is a client-local input problem. It never reaches the store.
	KindValidation ErrorKind = "validation"
	// KindConfiguration means the backend is not configured. Fatal until fixed.
	KindConfiguration ErrorKind = "configuration"
	// KindTransientWrite is a network or backend failure. The user may resubmit.
	KindTransientWrite ErrorKind = "transient_write"
	// KindUnexpected is anything else. Only a generic message reaches the client.
	KindUnexpected ErrorKind = "unexpected"
)

// Error is the tagged result of a failed operation.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting the same request may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindTransientWrite }

// NewError builds a tagged error.
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindUnexpected if err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var agg *AggregateError
	if errors.As(err, &agg) {
		return KindValidation
	}
	return KindUnexpected
}

// IsRetryable reports whether err is a transient write failure.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Key    string // Field name
	Reason string // Human-readable reason for failure
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Fields returns the validation failures keyed by field name.
func (e *AggregateError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, err := range e.Errors {
		var ve *ValidationError
		if errors.As(err, &ve) {
			out[ve.Key] = ve.Reason
		}
	}
	return out
}
