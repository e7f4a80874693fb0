// Package outcome provides the tagged success/failure value returned by
// every operation in the execution core.
package outcome

import (
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
)

// Outcome represents the result of a fallible operation. Exactly one of the
// success value or the error is populated, matching the discriminant, and a
// code is always present. Outcomes are immutable once constructed; new
// context is produced by copy-merge, never in-place mutation.
type Outcome[T any] struct {
	ok        bool
	value     T
	err       error
	code      domain.Code
	timestamp time.Time
	diag      *domain.Context
}

// Success creates a successful outcome with code OK.
func Success[T any](value T) Outcome[T] {
	return SuccessWithCode(value, domain.CodeOK)
}

// SuccessWithCode creates a successful outcome with an explicit code.
func SuccessWithCode[T any](value T, code domain.Code) Outcome[T] {
	return Outcome[T]{
		ok:        true,
		value:     value,
		code:      code,
		timestamp: time.Now(),
	}
}

// Failure creates a failed outcome.
func Failure[T any](err error, code domain.Code) Outcome[T] {
	return Outcome[T]{
		err:       err,
		code:      code,
		timestamp: time.Now(),
	}
}

// FailureWithContext creates a failed outcome carrying diagnostic context.
func FailureWithContext[T any](err error, code domain.Code, diag *domain.Context) Outcome[T] {
	o := Failure[T](err, code)
	o.diag = diag
	return o
}

// IsSuccess reports whether the outcome holds a value.
func (o Outcome[T]) IsSuccess() bool { return o.ok }

// IsFailure reports whether the outcome holds an error.
func (o Outcome[T]) IsFailure() bool { return !o.ok }

// Code returns the outcome's domain code.
func (o Outcome[T]) Code() domain.Code { return o.code }

// Timestamp returns the construction time of the outcome.
func (o Outcome[T]) Timestamp() time.Time { return o.timestamp }

// Err returns the error of a failed outcome, or nil.
func (o Outcome[T]) Err() error { return o.err }

// Context returns the outcome's diagnostic context, which may be nil.
func (o Outcome[T]) Context() *domain.Context { return o.diag }

// Unwrap returns the success value or panics on failure.
func (o Outcome[T]) Unwrap() T {
	if !o.ok {
		panic("called Unwrap on a failure: " + o.err.Error())
	}
	return o.value
}

// UnwrapOr returns the success value or a default.
func (o Outcome[T]) UnwrapOr(defaultValue T) T {
	if o.ok {
		return o.value
	}
	return defaultValue
}

// UnwrapOrElse returns the success value or computes a default from the error.
func (o Outcome[T]) UnwrapOrElse(fn func(error) T) T {
	if o.ok {
		return o.value
	}
	return fn(o.err)
}

// WithContext returns a copy of the outcome whose context is the shallow
// merge of the existing context with diag, new keys winning on conflict.
// Code and timestamp are preserved.
func (o Outcome[T]) WithContext(diag *domain.Context) Outcome[T] {
	merged := o.diag.Merge(diag)
	o.diag = merged
	return o
}

// Match executes one of two functions based on the outcome state.
func (o Outcome[T]) Match(onSuccess func(T), onFailure func(error, domain.Code)) {
	if o.ok {
		onSuccess(o.value)
	} else {
		onFailure(o.err, o.code)
	}
}

// Map applies fn to the success value. Failures propagate unchanged with
// identical code, error, and context; the mapper is never invoked.
func Map[T, U any](o Outcome[T], fn func(T) U) Outcome[U] {
	if !o.ok {
		return propagateFailure[T, U](o)
	}
	mapped := SuccessWithCode(fn(o.value), o.code)
	mapped.timestamp = o.timestamp
	mapped.diag = o.diag
	return mapped
}

// FlatMap applies fn to the success value. Failures propagate unchanged.
func FlatMap[T, U any](o Outcome[T], fn func(T) Outcome[U]) Outcome[U] {
	if !o.ok {
		return propagateFailure[T, U](o)
	}
	return fn(o.value)
}

// MapError applies fn to the error of a failed outcome, preserving code,
// timestamp, and context. Successes propagate unchanged.
func MapError[T any](o Outcome[T], fn func(error) error) Outcome[T] {
	if o.ok {
		return o
	}
	o.err = fn(o.err)
	return o
}

// Combine evaluates the thunks in order and returns their values, or the
// first failure with its code and context preserved. Thunks after the
// failing entry are never evaluated.
func Combine[T any](thunks ...func() Outcome[T]) Outcome[[]T] {
	values := make([]T, 0, len(thunks))
	for _, thunk := range thunks {
		o := thunk()
		if o.IsFailure() {
			return propagateFailure[T, []T](o)
		}
		values = append(values, o.Unwrap())
	}
	return Success(values)
}

func propagateFailure[T, U any](o Outcome[T]) Outcome[U] {
	return Outcome[U]{
		err:       o.err,
		code:      o.code,
		timestamp: o.timestamp,
		diag:      o.diag,
	}
}
