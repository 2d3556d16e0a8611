// Package apperrors defines the typed error taxonomy used across the
// authorization core (spec.md §7). Every store, router, and transport layer
// maps vendor- or protocol-specific failures into one of these kinds so
// that callers never have to inspect driver error codes directly.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is one of the six error kinds from spec.md §7.
type Code string

const (
	CodeNotFound    Code = "not_found"
	CodeConflict    Code = "conflict"
	CodeValidation  Code = "validation"
	CodeTransient   Code = "transient"
	CodeUnavailable Code = "unavailable"
	CodeFatal       Code = "fatal"
)

// Error wraps a failure with its kind and the aggregate/identifier it
// concerns, following the shape of the corpus's ProviderError/GatewayError
// types: a category, a subject, a message, and an optional underlying cause.
type Error struct {
	Code    Code
	Subject string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Subject, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Subject, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error with no underlying cause.
func New(code Code, subject, message string) *Error {
	return &Error{Code: code, Subject: subject, Message: message}
}

// Wrap constructs an Error around an underlying cause.
func Wrap(err error, code Code, subject, message string) *Error {
	return &Error{Code: code, Subject: subject, Message: message, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, defaulting to CodeFatal for
// unrecognized errors so that callers never silently treat an unknown
// failure as retryable or benign.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeFatal
}

// Retryable reports whether err is worth retrying, i.e. CodeTransient.
func Retryable(err error) bool {
	return CodeOf(err) == CodeTransient
}
