// Package classify maps error codes and raw faults to categories,
// retryability, and recovery hints. Classification is deterministic: the
// same input always yields the same verdict.
package classify

import (
	"context"
	"errors"

	"github.com/automation-platform/execution-core/internal/domain"
)

// Classify returns the verdict for a numeric error code. Bands are disjoint
// and total: every code maps to exactly one category.
func Classify(code domain.Code, operation string) domain.Classification {
	switch {
	case code.IsInput():
		return domain.Classification{
			Category:           domain.CategoryInput,
			RequiresUserAction: true,
			Hint:               domain.HintUserAction,
		}
	case code.IsPermission():
		return domain.Classification{
			Category:           domain.CategoryPermission,
			RequiresUserAction: true,
			Hint:               domain.HintPermission,
		}
	case code.IsTarget():
		return domain.Classification{
			Category:  domain.CategoryTarget,
			Retryable: true,
			Hint:      domain.HintCheckTarget,
		}
	case code.IsTimeout():
		return domain.Classification{
			Category:  domain.CategoryTimeout,
			Retryable: true,
			Hint:      domain.HintRetryWithDelay,
		}
	case code == domain.CodeExecutionAborted:
		// Caller-initiated cancellation is not a transient condition.
		return domain.Classification{
			Category: domain.CategoryBrowser,
			Hint:     domain.HintNotRecoverable,
		}
	case code.IsNetwork():
		return domain.Classification{
			Category:  domain.CategoryNetwork,
			Retryable: true,
			Hint:      domain.HintRetryWithDelay,
		}
	case code.IsExecution():
		return domain.Classification{
			Category:  domain.CategoryBrowser,
			Retryable: true,
			Hint:      domain.HintRetry,
		}
	case code.IsRateLimited():
		// Admission control should not be fought by blind retries; callers
		// may opt in with a custom retry condition.
		return domain.Classification{
			Category: domain.CategoryRateLimited,
			Hint:     domain.HintRetryWithDelay,
		}
	default:
		// Unknown failures get a bounded number of retries; exhaustion
		// converts the hint to not_recoverable.
		return domain.Classification{
			Category:  domain.CategoryUnknown,
			Retryable: true,
			Hint:      domain.HintRetry,
		}
	}
}

// CodeOf extracts the domain code from a raw fault. It switches on the
// closed OperationError tag and well-known context errors, never on
// structural probing.
func CodeOf(err error) domain.Code {
	var opErr *domain.OperationError
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CodeTimeout
	case errors.Is(err, context.Canceled):
		return domain.CodeExecutionAborted
	default:
		return domain.CodeUnknown
	}
}

// ClassifyError returns the verdict for a raw fault observed at the
// execution boundary.
func ClassifyError(err error, operation string) domain.Classification {
	return Classify(CodeOf(err), operation)
}
