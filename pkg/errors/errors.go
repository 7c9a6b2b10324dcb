// Package errors provides structured error types for fleetaudit.
//
// Error codes are machine-readable and map onto the failure taxonomy used
// throughout the analysis pipeline:
//   - TRANSIENT_NETWORK: retried with backoff
//   - RATE_LIMITED: retried with backoff up to the attempt cap, then the
//     affected data section is degraded
//   - UNAUTHORIZED: fatal for that integration only; the run continues with
//     the section marked unavailable
//   - PARSE_ERROR: scoped to a single manifest file; siblings unaffected
//   - TOOL_UNAVAILABLE: expected outcome when an optional external tool is
//     not installed
//
// # Usage
//
//	err := errors.New(errors.ErrCodeParse, "invalid composer.json: %v", cause)
//	if errors.Is(err, errors.ErrCodeParse) {
//	    // skip the file, keep going
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeInvalidEcosystem Code = "INVALID_ECOSYSTEM"
	ErrCodeInvalidRepoURL   Code = "INVALID_REPO_URL"
	ErrCodeInvalidConfig    Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeRepoNotFound Code = "REPO_NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Network errors
	ErrCodeTransient   Code = "TRANSIENT_NETWORK"
	ErrCodeTimeout     Code = "TIMEOUT"
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Authentication errors
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	ErrCodeForbidden    Code = "FORBIDDEN"

	// Data errors
	ErrCodeParse Code = "PARSE_ERROR"

	// Environment errors
	ErrCodeToolUnavailable Code = "TOOL_UNAVAILABLE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Degradable reports whether err should degrade a data section rather than
// fail the surrounding unit of work. Rate limits past the retry cap,
// timeouts, exhausted transient errors, auth failures, and missing tools all
// degrade; anything else is left to the caller.
func Degradable(err error) bool {
	switch GetCode(err) {
	case ErrCodeRateLimited, ErrCodeTimeout, ErrCodeTransient,
		ErrCodeUnauthorized, ErrCodeForbidden, ErrCodeToolUnavailable:
		return true
	}
	return false
}
