package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestClassifyKnownCodes(t *testing.T) {
	tests := []struct {
		name string
		code domain.Code
		want domain.Classification
	}{
		{
			name: "invalid input",
			code: domain.CodeInvalidInput,
			want: domain.Classification{Category: domain.CategoryInput, RequiresUserAction: true, Hint: domain.HintUserAction},
		},
		{
			name: "permission denied",
			code: domain.CodePermissionDenied,
			want: domain.Classification{Category: domain.CategoryPermission, RequiresUserAction: true, Hint: domain.HintPermission},
		},
		{
			name: "target not found",
			code: domain.CodeTargetNotFound,
			want: domain.Classification{Category: domain.CategoryTarget, Retryable: true, Hint: domain.HintCheckTarget},
		},
		{
			name: "timeout",
			code: domain.CodeTimeout,
			want: domain.Classification{Category: domain.CategoryTimeout, Retryable: true, Hint: domain.HintRetryWithDelay},
		},
		{
			name: "aborted is terminal",
			code: domain.CodeExecutionAborted,
			want: domain.Classification{Category: domain.CategoryBrowser, Hint: domain.HintNotRecoverable},
		},
		{
			name: "network error",
			code: domain.CodeNetworkError,
			want: domain.Classification{Category: domain.CategoryNetwork, Retryable: true, Hint: domain.HintRetryWithDelay},
		},
		{
			name: "execution failed",
			code: domain.CodeExecutionFailed,
			want: domain.Classification{Category: domain.CategoryBrowser, Retryable: true, Hint: domain.HintRetry},
		},
		{
			name: "rate limited is not blindly retryable",
			code: domain.CodeRateLimited,
			want: domain.Classification{Category: domain.CategoryRateLimited, Hint: domain.HintRetryWithDelay},
		},
		{
			name: "internal fault",
			code: domain.CodeInternal,
			want: domain.Classification{Category: domain.CategoryUnknown, Retryable: true, Hint: domain.HintRetry},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.code, "test.operation")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, domain.CodeTargetNotFound,
		CodeOf(domain.NewTargetNotFoundError("click.element", "#submit")))

	wrapped := errors.Join(errors.New("outer"), domain.NewTimeoutError("page.load", 0))
	assert.Equal(t, domain.CodeTimeout, CodeOf(wrapped))

	assert.Equal(t, domain.CodeTimeout, CodeOf(context.DeadlineExceeded))
	assert.Equal(t, domain.CodeExecutionAborted, CodeOf(context.Canceled))
	assert.Equal(t, domain.CodeUnknown, CodeOf(errors.New("something unexpected")))
}

func TestClassifyErrorUsesExtractedCode(t *testing.T) {
	cls := ClassifyError(domain.NewPermissionError("screenshot.capture", "denied", "grant screen recording"), "screenshot.capture")
	assert.Equal(t, domain.CategoryPermission, cls.Category)
	assert.True(t, cls.RequiresUserAction)
}

func TestProperty_ClassificationIsTotalAndDeterministic(t *testing.T) {
	params := testutil.DefaultTestParameters()
	props := gopter.NewProperties(params)

	props.Property("every_code_gets_a_category_and_hint", prop.ForAll(
		func(code domain.Code) bool {
			cls := Classify(code, "op")
			return cls.Category != "" && cls.Hint != domain.HintNone
		},
		testutil.GenErrorCode(),
	))

	props.Property("same_code_same_verdict", prop.ForAll(
		func(code domain.Code, operation string) bool {
			return Classify(code, operation) == Classify(code, "other.op")
		},
		testutil.GenErrorCode(),
		testutil.GenOperationName(),
	))

	props.Property("user_action_codes_are_never_retryable", prop.ForAll(
		func(code domain.Code) bool {
			cls := Classify(code, "op")
			if code.IsInput() || code.IsPermission() {
				return cls.RequiresUserAction && !cls.Retryable
			}
			return !cls.RequiresUserAction
		},
		testutil.GenErrorCode(),
	))

	props.TestingRun(t)
}
