// Package errors provides a structured error taxonomy for the analysis
// pipeline, distinguishing failures that should be retried from those that
// should not.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes an error.
type ErrorType string

const (
	// ErrorTypeTransient marks errors that can be retried.
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypePermanent marks errors that must not be retried.
	ErrorTypePermanent ErrorType = "permanent"
	// ErrorTypeNetwork marks connectivity failures.
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit marks remote API quota exhaustion.
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeDecode marks content that could not be decoded.
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeValidation marks invalid input.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeDatabase marks storage failures.
	ErrorTypeDatabase ErrorType = "database"
)

// Error is a categorized error with optional context fields.
type Error struct {
	Type      ErrorType
	Message   string
	Cause     error
	Context   map[string]interface{}
	Timestamp time.Time
	Retryable bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds a context field to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func retryable(t ErrorType) bool {
	switch t {
	case ErrorTypeTransient, ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	}
	return false
}

// New creates a new structured error.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: retryable(errType),
	}
}

// Wrap wraps an existing error with a type and message. Wrapping a structured
// error preserves its retryability.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	wrapped := &Error{
		Type:      errType,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
		Retryable: retryable(errType),
	}

	var structured *Error
	if errors.As(err, &structured) {
		wrapped.Retryable = structured.Retryable
	}

	return wrapped
}

// IsRetryable reports whether an error is safe to retry.
func IsRetryable(err error) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Retryable
	}
	return false
}

// GetType returns the error's type. Unstructured errors are permanent.
func GetType(err error) ErrorType {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Type
	}
	return ErrorTypePermanent
}

// NewRateLimitError creates a rate limit error carrying the retry-after hint.
func NewRateLimitError(message string, retryAfter time.Duration) *Error {
	err := New(ErrorTypeRateLimit, message)
	err.WithContext("retry_after", retryAfter)
	return err
}

// NewNetworkError wraps a connectivity failure.
func NewNetworkError(message string, err error) *Error {
	return Wrap(err, ErrorTypeNetwork, message)
}

// NewDecodeError creates a decode error for undecodable file content.
func NewDecodeError(message string) *Error {
	return New(ErrorTypeDecode, message)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return New(ErrorTypeValidation, message)
}

// NewDatabaseError wraps a storage failure.
func NewDatabaseError(message string, err error) *Error {
	return Wrap(err, ErrorTypeDatabase, message)
}
