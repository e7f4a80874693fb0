// Package pipeline combines rate limiting, execution, classification, and
// retry into a single admission-to-outcome flow.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/automation-platform/execution-core/internal/classify"
	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/outcome"
	"github.com/automation-platform/execution-core/internal/ratelimit"
	"github.com/automation-platform/execution-core/internal/retry"
)

// Executor runs operations through the full pipeline: rate limit admission,
// execution with panic containment, failure classification, and optional
// retries. An executor is safe for concurrent use.
type Executor struct {
	limiter *ratelimit.Limiter
	retries *retry.Handler
	clock   domain.Clock
	logger  *slog.Logger
	events  *domain.EventBuilder
}

// Config holds executor creation options. Limiter is required.
type Config struct {
	Limiter      *ratelimit.Limiter
	Retries      *retry.Handler
	Clock        domain.Clock
	Logger       *slog.Logger
	EventBuilder *domain.EventBuilder
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config) *Executor {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := cfg.Retries
	if retries == nil {
		retries = retry.New(retry.Config{Clock: clock, Logger: logger, EventBuilder: cfg.EventBuilder})
	}
	return &Executor{
		limiter: cfg.Limiter,
		retries: retries,
		clock:   clock,
		logger:  logger,
		events:  cfg.EventBuilder,
	}
}

// Request describes one operation submitted to the pipeline.
type Request struct {
	// OperationID is the dot-namespaced operation name used for rate limit
	// matching and diagnostics, e.g. "screenshot.viewport".
	OperationID string

	// Weight is the rate limit cost of the operation. Values below 1 are
	// treated as 1.
	Weight int

	// Metadata is attached to diagnostics and rate limit evaluation.
	Metadata map[string]any

	// BypassLimiter skips admission control for this request.
	BypassLimiter bool

	// Retry enables retries with the given options. Nil means a single
	// attempt.
	Retry *domain.RetryOptions
}

// Execute runs work through the pipeline and returns its outcome. Rate limit
// capacity is reserved before the work runs and released again when the work
// fails or the context is cancelled, so failed operations do not consume
// quota. When req.Retry is set, the whole admission-execution sequence is
// retried per the classifier's verdict on each failure.
func Execute[T any](ctx context.Context, e *Executor, req Request, work func(context.Context) (T, error)) outcome.Outcome[T] {
	if req.OperationID == "" {
		return outcome.Failure[T](
			domain.NewInvalidInputError("pipeline.execute", "operation id must not be empty"),
			domain.CodeMissingParameter,
		)
	}

	if req.Retry == nil {
		return executeOnce(ctx, e, req, work)
	}

	return retry.Do(ctx, e.retries, req.OperationID, *req.Retry, func(ctx context.Context) outcome.Outcome[T] {
		return executeOnce(ctx, e, req, work)
	})
}

func executeOnce[T any](ctx context.Context, e *Executor, req Request, work func(context.Context) (T, error)) outcome.Outcome[T] {
	start := e.clock.Now()

	var rsv *ratelimit.Reservation
	if !req.BypassLimiter && e.limiter != nil {
		rsv = e.limiter.Reserve(req.OperationID, req.Weight, req.Metadata)
		if d := rsv.Decision(); !d.Allowed {
			return deniedOutcome[T](e, req, d)
		}
	}

	if err := ctx.Err(); err != nil {
		if rsv != nil {
			rsv.Release()
		}
		return failureOutcome[T](e, req, err, start, "")
	}

	value, err, stack := runWork(ctx, req.OperationID, work)
	if err != nil {
		if rsv != nil {
			rsv.Release()
		}
		return failureOutcome[T](e, req, err, start, stack)
	}

	if rsv != nil {
		rsv.Commit()
	}

	elapsed := e.clock.Now().Sub(start)
	return outcome.Success(value).WithContext(&domain.Context{
		Duration: elapsed,
		Metadata: map[string]any{
			"operation":  req.OperationID,
			"durationMs": elapsed.Milliseconds(),
		},
	})
}

// runWork invokes the operation with panic containment. A panicking
// operation yields an internal error carrying the stack instead of
// unwinding through the pipeline.
func runWork[T any](ctx context.Context, operation string, work func(context.Context) (T, error)) (value T, err error, stack string) {
	defer func() {
		if r := recover(); r != nil {
			stack = string(debug.Stack())
			err = domain.NewInternalError(operation, fmt.Errorf("panic: %v", r))
		}
	}()
	value, err = work(ctx)
	return value, err, ""
}

func deniedOutcome[T any](e *Executor, req Request, d domain.RateLimitDecision) outcome.Outcome[T] {
	err := domain.NewRateLimitedError(req.OperationID, d.RetryAfter)

	e.logger.Debug("execution denied by rate limit",
		slog.String("operation", req.OperationID),
		slog.String("pattern", d.Pattern),
		slog.Duration("retry_after", d.RetryAfter))

	e.events.Emit(domain.EventExecutionDenied, map[string]any{
		"operation":   req.OperationID,
		"pattern":     d.Pattern,
		"retry_after": d.RetryAfter.String(),
	})

	cls := classify.Classify(domain.CodeRateLimited, req.OperationID)
	return outcome.FailureWithContext[T](err, domain.CodeRateLimited, &domain.Context{
		RecoveryHint: cls.Hint,
		Metadata: map[string]any{
			"operation":    req.OperationID,
			"pattern":      d.Pattern,
			"retryAfterMs": d.RetryAfter.Milliseconds(),
			"resetTimeMs":  d.ResetAt.UnixMilli(),
			"remaining":    d.Remaining,
		},
	})
}

func failureOutcome[T any](e *Executor, req Request, err error, start time.Time, stack string) outcome.Outcome[T] {
	code := classify.CodeOf(err)
	cls := classify.Classify(code, req.OperationID)
	elapsed := e.clock.Now().Sub(start)

	// A non-empty stack means the work panicked. The failure is marked
	// terminal so a surrounding retry loop never reruns it.
	hint := cls.Hint
	retryable := cls.Retryable
	if stack != "" {
		hint = domain.HintNotRecoverable
		retryable = false
	}

	e.logger.Debug("execution failed",
		slog.String("operation", req.OperationID),
		slog.Int("code", int(code)),
		slog.String("category", string(cls.Category)),
		slog.Duration("duration", elapsed),
		slog.Any("error", err))

	diag := &domain.Context{
		RecoveryHint: hint,
		Duration:     elapsed,
		StackTrace:   stack,
		Metadata: map[string]any{
			"operation":  req.OperationID,
			"category":   string(cls.Category),
			"retryable":  retryable,
			"durationMs": elapsed.Milliseconds(),
		},
	}
	return outcome.FailureWithContext[T](err, code, diag)
}
