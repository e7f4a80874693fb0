package outcome

import (
	"errors"
	"testing"

	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccess(t *testing.T) {
	o := Success(42)

	assert.True(t, o.IsSuccess())
	assert.False(t, o.IsFailure())
	assert.Equal(t, domain.CodeOK, o.Code())
	assert.Equal(t, 42, o.Unwrap())
	assert.NoError(t, o.Err())
	assert.False(t, o.Timestamp().IsZero())
}

func TestFailure(t *testing.T) {
	err := errors.New("element not found")
	o := Failure[string](err, domain.CodeTargetNotFound)

	assert.True(t, o.IsFailure())
	assert.False(t, o.IsSuccess())
	assert.Equal(t, domain.CodeTargetNotFound, o.Code())
	assert.Equal(t, err, o.Err())
}

func TestUnwrapPanicsOnFailure(t *testing.T) {
	o := Failure[int](errors.New("boom"), domain.CodeUnknown)

	assert.Panics(t, func() { o.Unwrap() })
}

func TestUnwrapOr(t *testing.T) {
	assert.Equal(t, 7, Success(7).UnwrapOr(99))
	assert.Equal(t, 99, Failure[int](errors.New("boom"), domain.CodeUnknown).UnwrapOr(99))
}

func TestUnwrapOrElse(t *testing.T) {
	got := Failure[int](errors.New("boom"), domain.CodeUnknown).UnwrapOrElse(func(err error) int {
		return len(err.Error())
	})
	assert.Equal(t, 4, got)
}

func TestMapTransformsSuccess(t *testing.T) {
	o := Map(Success(21), func(v int) int { return v * 2 })

	require.True(t, o.IsSuccess())
	assert.Equal(t, 42, o.Unwrap())
	assert.Equal(t, domain.CodeOK, o.Code())
}

func TestMapPropagatesFailureUntouched(t *testing.T) {
	err := errors.New("denied")
	diag := &domain.Context{RecoveryHint: domain.HintPermission}
	failed := FailureWithContext[int](err, domain.CodePermissionDenied, diag)

	invoked := false
	o := Map(failed, func(v int) string {
		invoked = true
		return "never"
	})

	assert.False(t, invoked)
	assert.True(t, o.IsFailure())
	assert.Equal(t, domain.CodePermissionDenied, o.Code())
	assert.Equal(t, err, o.Err())
	assert.Equal(t, failed.Timestamp(), o.Timestamp())
	require.NotNil(t, o.Context())
	assert.Equal(t, domain.HintPermission, o.Context().RecoveryHint)
}

func TestFlatMapChainsAndShortCircuits(t *testing.T) {
	double := func(v int) Outcome[int] { return Success(v * 2) }

	o := FlatMap(Success(5), double)
	require.True(t, o.IsSuccess())
	assert.Equal(t, 10, o.Unwrap())

	failed := Failure[int](errors.New("boom"), domain.CodeExecutionFailed)
	invoked := false
	o = FlatMap(failed, func(v int) Outcome[int] {
		invoked = true
		return Success(v)
	})
	assert.False(t, invoked)
	assert.Equal(t, domain.CodeExecutionFailed, o.Code())
}

func TestMapErrorPreservesCodeAndContext(t *testing.T) {
	diag := &domain.Context{Metadata: map[string]any{"k": "v"}}
	failed := FailureWithContext[int](errors.New("inner"), domain.CodeTimeout, diag)

	o := MapError(failed, func(err error) error {
		return errors.New("wrapped: " + err.Error())
	})

	assert.Equal(t, domain.CodeTimeout, o.Code())
	assert.Equal(t, "wrapped: inner", o.Err().Error())
	assert.Equal(t, failed.Timestamp(), o.Timestamp())
	require.NotNil(t, o.Context())
	assert.Equal(t, "v", o.Context().Metadata["k"])

	ok := MapError(Success(1), func(err error) error { return errors.New("never") })
	assert.True(t, ok.IsSuccess())
}

func TestCombineCollectsValues(t *testing.T) {
	o := Combine(
		func() Outcome[int] { return Success(1) },
		func() Outcome[int] { return Success(2) },
		func() Outcome[int] { return Success(3) },
	)

	require.True(t, o.IsSuccess())
	assert.Equal(t, []int{1, 2, 3}, o.Unwrap())
}

func TestCombineShortCircuitsOnFirstFailure(t *testing.T) {
	evaluated := false
	o := Combine(
		func() Outcome[int] { return Success(1) },
		func() Outcome[int] { return Failure[int](errors.New("boom"), domain.CodeNetworkError) },
		func() Outcome[int] {
			evaluated = true
			return Success(3)
		},
	)

	assert.False(t, evaluated)
	assert.True(t, o.IsFailure())
	assert.Equal(t, domain.CodeNetworkError, o.Code())
}

func TestWithContextMergesNewKeysWinning(t *testing.T) {
	o := FailureWithContext[int](errors.New("boom"), domain.CodeUnknown, &domain.Context{
		Metadata: map[string]any{"a": 1, "b": 1},
	})

	merged := o.WithContext(&domain.Context{
		RecoveryHint: domain.HintRetry,
		Metadata:     map[string]any{"b": 2, "c": 3},
	})

	require.NotNil(t, merged.Context())
	assert.Equal(t, domain.HintRetry, merged.Context().RecoveryHint)
	assert.Equal(t, 1, merged.Context().Metadata["a"])
	assert.Equal(t, 2, merged.Context().Metadata["b"])
	assert.Equal(t, 3, merged.Context().Metadata["c"])

	// The original is unchanged.
	assert.Equal(t, 1, o.Context().Metadata["b"])
	assert.Equal(t, domain.HintNone, o.Context().RecoveryHint)
}

func TestMatch(t *testing.T) {
	var value int
	Success(5).Match(
		func(v int) { value = v },
		func(error, domain.Code) { t.Fatal("failure branch on success") },
	)
	assert.Equal(t, 5, value)

	var code domain.Code
	Failure[int](errors.New("boom"), domain.CodeInvalidInput).Match(
		func(int) { t.Fatal("success branch on failure") },
		func(_ error, c domain.Code) { code = c },
	)
	assert.Equal(t, domain.CodeInvalidInput, code)
}

func TestProperty_MapPreservesFailureIdentity(t *testing.T) {
	params := testutil.DefaultTestParameters()
	props := gopter.NewProperties(params)

	props.Property("failure_survives_any_chain_of_maps", prop.ForAll(
		func(code domain.Code, depth int) bool {
			o := Failure[int](errors.New("boom"), code)
			for i := 0; i < depth; i++ {
				o = Map(o, func(v int) int { return v + 1 })
			}
			return o.IsFailure() && o.Code() == code
		},
		testutil.GenErrorCode().SuchThat(func(c domain.Code) bool { return c != domain.CodeOK }),
		gen.IntRange(0, 10),
	))

	props.Property("map_composition_equals_sequential_maps", prop.ForAll(
		func(v, a, b int) bool {
			f := func(x int) int { return x + a }
			g := func(x int) int { return x * b }
			lhs := Map(Map(Success(v), f), g)
			rhs := Map(Success(v), func(x int) int { return g(f(x)) })
			return lhs.Unwrap() == rhs.Unwrap()
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(-100, 100),
		gen.IntRange(-100, 100),
	))

	props.TestingRun(t)
}
