package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request-level error codes. These fail fast before any state is mutated.
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
)

// Execution-level error codes. These are recorded into steps and node states
// rather than returned to the caller.
const (
	ErrExecutionFailed ErrorCode = "EXECUTION_FAILED"
	ErrTimeout         ErrorCode = "TIMEOUT"
	ErrToolFailed      ErrorCode = "TOOL_FAILED"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
)

// Service error codes.
const (
	ErrAgentBusy     ErrorCode = "AGENT_BUSY"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NewValidationError reports malformed or missing input.
func NewValidationError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewUnauthorizedError reports a missing or invalid identity.
func NewUnauthorizedError(message string) *Error {
	return NewError(ErrUnauthorized, message).WithHTTPStatus(http.StatusUnauthorized)
}

// NewForbiddenError reports an ownership mismatch.
func NewForbiddenError(message string) *Error {
	return NewError(ErrForbidden, message).WithHTTPStatus(http.StatusForbidden)
}

// NewNotFoundError reports an unknown resource.
func NewNotFoundError(message string) *Error {
	return NewError(ErrNotFound, message).WithHTTPStatus(http.StatusNotFound)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternalError, message).WithCause(cause).WithHTTPStatus(http.StatusInternalServerError)
}

// NewTimeoutError reports a deadline exceeded during execution.
func NewTimeoutError(message string) *Error {
	return NewError(ErrTimeout, message).WithRetryable(true)
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
