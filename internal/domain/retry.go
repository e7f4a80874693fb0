package domain

import "time"

// Retry defaults. They apply whenever the corresponding option is zero.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialDelay      = time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// RetryCondition decides whether a failed attempt with the given code should
// be retried. attempt is 1-based.
type RetryCondition func(code Code, attempt int) bool

// OnRetry is invoked before each inter-attempt delay.
type OnRetry func(attempt int, delay time.Duration, code Code)

// RetryOptions configures the retry handler for a single invocation.
type RetryOptions struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	DisableJitter     bool
	RetryCondition    RetryCondition
	OnRetry           OnRetry
}

// WithDefaults returns a copy with zero fields replaced by the defaults.
// Jitter is on unless explicitly disabled.
func (o RetryOptions) WithDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = DefaultBackoffMultiplier
	}
	return o
}
