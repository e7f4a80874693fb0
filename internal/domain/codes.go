// Package domain defines core types and interfaces for the execution core.
package domain

// Code is a numeric error code grouped into contiguous bands. Callers depend
// on the band boundaries for classification, so the layout below is part of
// the external contract and must not be renumbered.
type Code int

// Band boundaries. Each band is half-open: [start, end).
const (
	bandInputStart      Code = 1000
	bandInputEnd        Code = 2000
	bandPermissionStart Code = 2000
	bandPermissionEnd   Code = 3000
	bandTargetStart     Code = 3000
	bandTargetEnd       Code = 4000
	bandExecutionStart  Code = 4000
	bandExecutionEnd    Code = 5000
	bandRateLimitStart  Code = 5000
	bandRateLimitEnd    Code = 5100
	bandUnknownStart    Code = 9000
	bandUnknownEnd      Code = 9100
)

const (
	// CodeOK indicates success.
	CodeOK Code = 0

	// Input validation band: malformed arguments, never retried.
	CodeInvalidInput     Code = 1000
	CodeMissingParameter Code = 1001
	CodeInvalidSelector  Code = 1002
	CodeInvalidRule      Code = 1003

	// Permission band: requires user action, never retried.
	CodePermissionDenied   Code = 2000
	CodeAutomationDenied   Code = 2001
	CodeScreenCaptureDenied Code = 2002

	// Target band: resource or element not found, retryable with a
	// check_target policy.
	CodeTargetNotFound    Code = 3000
	CodeElementNotVisible Code = 3001
	CodeStaleTarget       Code = 3002
	CodeWindowNotFound    Code = 3003

	// Execution band: transient execution failures and timeouts.
	CodeExecutionFailed Code = 4000
	CodeTimeout         Code = 4001
	CodeExecutionAborted Code = 4002
	CodeNetworkError    Code = 4100
	CodeConnectionReset Code = 4101

	// Admission control.
	CodeRateLimited Code = 5000

	// Unknown band: programming faults, surfaced immediately.
	CodeUnknown  Code = 9000
	CodeInternal Code = 9001
)

// IsOK reports whether the code indicates success.
func (c Code) IsOK() bool { return c == CodeOK }

// IsInput reports whether the code is in the input validation band.
func (c Code) IsInput() bool { return c >= bandInputStart && c < bandInputEnd }

// IsPermission reports whether the code is in the permission band.
func (c Code) IsPermission() bool { return c >= bandPermissionStart && c < bandPermissionEnd }

// IsTarget reports whether the code is in the target band.
func (c Code) IsTarget() bool { return c >= bandTargetStart && c < bandTargetEnd }

// IsExecution reports whether the code is in the execution band.
func (c Code) IsExecution() bool { return c >= bandExecutionStart && c < bandExecutionEnd }

// IsNetwork reports whether the code is in the network sub-band of the
// execution band.
func (c Code) IsNetwork() bool { return c >= CodeNetworkError && c < bandExecutionEnd }

// IsTimeout reports whether the code indicates a timed-out attempt.
func (c Code) IsTimeout() bool { return c == CodeTimeout }

// IsRateLimited reports whether the code is in the rate limit band.
func (c Code) IsRateLimited() bool { return c >= bandRateLimitStart && c < bandRateLimitEnd }

// IsUnknown reports whether the code is in the unknown/internal band or
// falls outside every defined band.
func (c Code) IsUnknown() bool {
	if c >= bandUnknownStart && c < bandUnknownEnd {
		return true
	}
	return !c.IsOK() && !c.IsInput() && !c.IsPermission() && !c.IsTarget() &&
		!c.IsExecution() && !c.IsRateLimited()
}
