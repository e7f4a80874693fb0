// Package retry implements retry logic with exponential backoff and jitter.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"time"

	"github.com/automation-platform/execution-core/internal/classify"
	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/outcome"
)

// Handler drives repeated invocation of operations that return outcomes.
// Delays are taken from the injected clock so schedules are deterministic
// in tests.
type Handler struct {
	clock  domain.Clock
	logger *slog.Logger
	events *domain.EventBuilder
	randFn func() float64
}

// Config holds retry handler creation options.
type Config struct {
	Clock        domain.Clock
	Logger       *slog.Logger
	EventBuilder *domain.EventBuilder
}

// New creates a new retry handler.
func New(cfg Config) *Handler {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		clock:  clock,
		logger: logger,
		events: cfg.EventBuilder,
		randFn: cryptoRandFloat64,
	}
}

// Do invokes op up to opts.MaxAttempts times, consulting the classifier's
// retryability signal between attempts. The returned outcome is annotated
// with retry history whenever more than one attempt ran. The operation is
// assumed idempotent from the caller's perspective; that is a caller
// contract, not something the handler can guarantee.
func Do[T any](ctx context.Context, h *Handler, label string, opts domain.RetryOptions, op func(context.Context) outcome.Outcome[T]) outcome.Outcome[T] {
	opts = opts.WithDefaults()

	start := h.clock.Now()
	delays := make([]time.Duration, 0, opts.MaxAttempts-1)
	codes := make([]domain.Code, 0, opts.MaxAttempts)

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		res, panicked := runAttempt(ctx, label, op)

		if res.IsSuccess() {
			if attempt == 1 {
				return res
			}
			return res.WithContext(&domain.Context{
				Metadata: map[string]any{
					"retryAttempts":   attempt - 1,
					"delaysMs":        delayMillis(delays),
					"totalDurationMs": h.clock.Now().Sub(start).Milliseconds(),
				},
			})
		}

		codes = append(codes, res.Code())

		// A panic in the operation indicates a programming fault rather
		// than a transient condition; it is never retried. The same holds
		// for failures a lower layer already marked not recoverable, such
		// as a panic contained inside the operation itself.
		if panicked || terminalFailure(res) {
			return finalize(h, res, label, domain.HintNotRecoverable, attempt, delays, codes, start)
		}

		cls := classify.Classify(res.Code(), label)
		shouldRetry := attempt < opts.MaxAttempts && !cls.RequiresUserAction
		if shouldRetry {
			if opts.RetryCondition != nil {
				shouldRetry = opts.RetryCondition(res.Code(), attempt)
			} else {
				shouldRetry = cls.Retryable
			}
		}

		if !shouldRetry {
			hint := domain.HintNotRecoverable
			if cls.RequiresUserAction {
				hint = domain.HintUserAction
			}
			return finalize(h, res, label, hint, attempt, delays, codes, start)
		}

		delay := h.backoffDelay(opts, attempt)
		delays = append(delays, delay)

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, delay, res.Code())
		}

		h.logger.DebugContext(ctx, "retrying operation",
			slog.String("operation", label),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", opts.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Int("code", int(res.Code())))

		h.events.EmitWithContext(ctx, domain.EventRetryAttempt, map[string]any{
			"operation":    label,
			"attempt":      attempt,
			"max_attempts": opts.MaxAttempts,
			"delay":        delay.String(),
			"code":         int(res.Code()),
		})

		if err := h.clock.Sleep(ctx, delay); err != nil {
			return finalize(h, res, label, domain.HintNotRecoverable, attempt, delays, codes, start)
		}
	}

	// Unreachable: the loop always returns from its final attempt.
	panic("retry: attempt loop escaped")
}

// finalize converts the last failure into a terminal one. An explicitly-set
// recovery hint on the outcome is preserved; otherwise the fallback applies.
func finalize[T any](h *Handler, res outcome.Outcome[T], label string, fallback domain.RecoveryHint, attempts int, delays []time.Duration, codes []domain.Code, start time.Time) outcome.Outcome[T] {
	hint := fallback
	if diag := res.Context(); diag != nil && diag.RecoveryHint != domain.HintNone {
		hint = diag.RecoveryHint
	}

	if attempts > 1 {
		h.events.Emit(domain.EventRetryExhausted, map[string]any{
			"operation": label,
			"attempts":  attempts,
			"code":      int(res.Code()),
		})
	}

	return res.WithContext(&domain.Context{
		RecoveryHint: hint,
		Metadata: map[string]any{
			"retryAttempts":   attempts - 1,
			"delaysMs":        delayMillis(delays),
			"errorCodes":      codeInts(codes),
			"totalDurationMs": h.clock.Now().Sub(start).Milliseconds(),
		},
	})
}

// backoffDelay computes the exponential backoff delay for the given 1-based
// attempt, optionally scaled by a uniform jitter factor in [0.5, 1.5).
func (h *Handler) backoffDelay(opts domain.RetryOptions, attempt int) time.Duration {
	base := float64(opts.InitialDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt-1))
	if base > float64(opts.MaxDelay) {
		base = float64(opts.MaxDelay)
	}
	if !opts.DisableJitter {
		base *= 0.5 + h.randFn()
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

// terminalFailure reports whether the failure already carries a
// not-recoverable verdict from the layer that produced it.
func terminalFailure[T any](res outcome.Outcome[T]) bool {
	diag := res.Context()
	return diag != nil && diag.RecoveryHint == domain.HintNotRecoverable
}

// runAttempt invokes op, converting a panic into a terminal failure.
func runAttempt[T any](ctx context.Context, label string, op func(context.Context) outcome.Outcome[T]) (res outcome.Outcome[T], panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			res = outcome.FailureWithContext[T](
				domain.NewInternalError(label, fmt.Errorf("panic: %v", r)),
				domain.CodeInternal,
				&domain.Context{
					RecoveryHint: domain.HintNotRecoverable,
					StackTrace:   string(debug.Stack()),
				},
			)
		}
	}()
	return op(ctx), false
}

func delayMillis(delays []time.Duration) []int64 {
	ms := make([]int64, len(delays))
	for i, d := range delays {
		ms[i] = d.Milliseconds()
	}
	return ms
}

func codeInts(codes []domain.Code) []int {
	ints := make([]int, len(codes))
	for i, c := range codes {
		ints[i] = int(c)
	}
	return ints
}

// cryptoRandFloat64 returns a cryptographically random float64 in [0, 1).
func cryptoRandFloat64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fallback to time-based entropy (should never happen)
		return float64(time.Now().UnixNano()%1000) / 1000.0
	}
	n := binary.BigEndian.Uint64(b[:])
	return float64(n) / float64(^uint64(0))
}
