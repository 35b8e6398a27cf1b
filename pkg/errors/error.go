// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): unknown and internal errors
//   - Validation errors (100-199): invalid frames, configuration and schema violations
//   - Data/Resource errors (200-299): missing stage data, page I/O and markers
//   - Condition and strategy errors (300-399): registry lookups and strategy construction
//   - Optimization errors (400-499): failed or timed out optimizer trials
//   - Pipeline errors (500-599): cancellation and stage failures
//   - Market data errors (700-799): market data fetching and parsing errors
//
// Usage:
//
//	err := errors.Newf(errors.ErrCodeDataNotFound, "stage %s has no data", stage)
//	err := errors.Wrap(errors.ErrCodePageWriteFailed, "failed to copy page", cause)
//
//	if errors.HasCode(err, errors.ErrCodeSchemaViolation) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Context cancellation anywhere in the chain maps to ErrCodeCancellationRequested.
// Returns ErrCodeUnknown otherwise.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	if IsCancellation(err) {
		return ErrCodeCancellationRequested
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsCancellation reports whether err stems from a cancelled or expired context.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeCancellationRequested {
		return true
	}

	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Kind returns the short domain kind of an error, used for error markers and metric labels.
func Kind(err error) string {
	switch code := GetCode(err); {
	case code == ErrCodeCancellationRequested:
		return "cancelled"
	case code == ErrCodeSchemaViolation || code == ErrCodeMissingColumn:
		return "schema_violation"
	case code == ErrCodeDataNotFound:
		return "data_not_found"
	case code >= 100 && code < 200:
		return "invalid_input"
	case code >= 400 && code < 500:
		return "optimization_failure"
	default:
		return "internal_error"
	}
}
