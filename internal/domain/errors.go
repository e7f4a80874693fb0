package domain

import (
	"fmt"
	"time"
)

// OperationError is the closed error type raised by the execution core and
// by callers that want their faults classified precisely. The classifier
// switches on Code, never on structural probing.
type OperationError struct {
	Code       Code
	Message    string
	Operation  string
	RetryAfter time.Duration
	Metadata   map[string]any
	Cause      error
}

func (e *OperationError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Operation, e.Message)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// NewInvalidInputError creates an input validation error.
func NewInvalidInputError(operation, message string) *OperationError {
	return &OperationError{
		Code:      CodeInvalidInput,
		Message:   message,
		Operation: operation,
	}
}

// NewPermissionError creates a permission error carrying a remediation hint
// in its metadata.
func NewPermissionError(operation, message, remediation string) *OperationError {
	return &OperationError{
		Code:      CodePermissionDenied,
		Message:   message,
		Operation: operation,
		Metadata: map[string]any{
			"remediation": remediation,
		},
	}
}

// NewTargetNotFoundError creates a target-not-found error.
func NewTargetNotFoundError(operation, target string) *OperationError {
	return &OperationError{
		Code:      CodeTargetNotFound,
		Message:   fmt.Sprintf("target '%s' not found", target),
		Operation: operation,
		Metadata: map[string]any{
			"target": target,
		},
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(operation string, timeout time.Duration) *OperationError {
	return &OperationError{
		Code:      CodeTimeout,
		Message:   fmt.Sprintf("operation timed out after %v", timeout),
		Operation: operation,
		Metadata: map[string]any{
			"timeout": timeout,
		},
	}
}

// NewRateLimitedError creates an admission-denied error.
func NewRateLimitedError(operation string, retryAfter time.Duration) *OperationError {
	return &OperationError{
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
		Operation:  operation,
		RetryAfter: retryAfter,
	}
}

// NewInternalError creates an internal error from a programming fault.
func NewInternalError(operation string, cause error) *OperationError {
	return &OperationError{
		Code:      CodeInternal,
		Message:   "internal failure",
		Operation: operation,
		Cause:     cause,
	}
}

// NewRetryExhaustedError creates an error describing exhausted retries.
func NewRetryExhaustedError(operation string, attempts int, cause error) *OperationError {
	return &OperationError{
		Code:      CodeExecutionFailed,
		Message:   fmt.Sprintf("retry exhausted after %d attempts", attempts),
		Operation: operation,
		Cause:     cause,
		Metadata: map[string]any{
			"attempts": attempts,
		},
	}
}
