// File: errors.go
// Title: Core Error Implementation
// Description: Coded error type with operation context. Values are safe to
//              use as package-level sentinels: every With* method returns a
//              copy, so a sentinel is never mutated by a caller.
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-10-16
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with contextual errors
// - 2026-10-16 v0.2.0: Copy-on-write modifiers, dropped stack capture

package apperr

import (
	"errors"
	"fmt"
)

// Error represents a structured error with a code and operation context
type Error struct {
	message   string
	cause     error
	code      Code
	severity  Severity
	operation string
}

// New creates a new error with CodeUnknown
func New(message string) *Error {
	return &Error{
		message:  message,
		code:     CodeUnknown,
		severity: SeverityMedium,
	}
}

// Newf creates a new error with a formatted message
func Newf(format string, args ...interface{}) *Error {
	return New(fmt.Sprintf(format, args...))
}

// Wrap wraps err with additional context. The code and severity of an
// underlying *Error are inherited.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	wrapped := &Error{
		message:  message,
		cause:    err,
		code:     CodeUnknown,
		severity: SeverityMedium,
	}

	var inner *Error
	if errors.As(err, &inner) {
		wrapped.code = inner.code
		wrapped.severity = inner.severity
		wrapped.operation = inner.operation
	}
	return wrapped
}

// Wrapf wraps err with a formatted message
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Error implements the standard error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.message, e.cause.Error())
	}
	return e.message
}

// Unwrap returns the underlying cause for error unwrapping
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCode returns a copy carrying code and its default severity
func (e *Error) WithCode(code Code) *Error {
	c := *e
	c.code = code
	c.severity = SeverityFromCode(code)
	return &c
}

// WithSeverity returns a copy with an explicit severity
func (e *Error) WithSeverity(severity Severity) *Error {
	c := *e
	c.severity = severity
	return &c
}

// WithOperation returns a copy tagged with the failing operation
func (e *Error) WithOperation(operation string) *Error {
	c := *e
	c.operation = operation
	return &c
}

// Code returns the error code
func (e *Error) Code() Code {
	return e.code
}

// Severity returns the error severity
func (e *Error) Severity() Severity {
	return e.severity
}

// Operation returns the operation that failed
func (e *Error) Operation() string {
	return e.operation
}

// Message returns the message without the cause chain
func (e *Error) Message() string {
	return e.message
}

// HasCode reports whether any error in err's chain carries code
func HasCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// GetCode returns the outermost code in err's chain, or CodeUnknown
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return CodeUnknown
}

// GetSeverity returns the severity of err, or SeverityMedium for foreign errors
func GetSeverity(err error) Severity {
	var e *Error
	if errors.As(err, &e) {
		return e.severity
	}
	return SeverityMedium
}
