package types

import "fmt"

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Orchestration error codes
const (
	ErrWorkerNotFound  ErrorCode = "WORKER_NOT_FOUND"
	ErrDispatchTimeout ErrorCode = "DISPATCH_TIMEOUT"
	ErrNoSuccess       ErrorCode = "NO_SUCCESS"
	ErrWorkerDestroyed ErrorCode = "WORKER_DESTROYED"
	ErrWorkerExists    ErrorCode = "WORKER_EXISTS"
)

// Supervision error codes
const (
	ErrMaxDepthExceeded ErrorCode = "MAX_DEPTH_EXCEEDED"
	ErrParentNotFound   ErrorCode = "PARENT_NOT_FOUND"
	ErrNodeExists       ErrorCode = "NODE_EXISTS"
	ErrNodeNotFound     ErrorCode = "NODE_NOT_FOUND"
	ErrRestartExhausted ErrorCode = "RESTART_EXHAUSTED"
	ErrFatal            ErrorCode = "FATAL"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
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

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
