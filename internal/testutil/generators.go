// Package testutil provides test utilities and generators for property-based testing.
package testutil

import (
	"strings"
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
)

// GenAlgorithm generates one of the supported rate limit algorithms.
func GenAlgorithm() gopter.Gen {
	return gen.OneConstOf(
		domain.SlidingWindow,
		domain.TokenBucket,
		domain.FixedWindow,
		domain.LeakyBucket,
	)
}

// GenRateLimitRule generates valid rate limit rules across all algorithms.
func GenRateLimitRule() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1, 1000),    // MaxOperations
		gen.IntRange(100, 60000), // Window in ms
		GenAlgorithm(),
		gen.IntRange(0, 100), // BurstSize
	).Map(func(vals []interface{}) domain.RateLimitRule {
		return domain.RateLimitRule{
			MaxOperations: vals[0].(int),
			Window:        time.Duration(vals[1].(int)) * time.Millisecond,
			Algorithm:     vals[2].(domain.Algorithm),
			BurstSize:     vals[3].(int),
		}
	})
}

// GenRetryOptions generates valid retry options.
func GenRetryOptions() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1, 10),        // MaxAttempts
		gen.IntRange(1, 1000),      // InitialDelay in ms
		gen.IntRange(1000, 60000),  // MaxDelay in ms
		gen.Float64Range(1.0, 5.0), // BackoffMultiplier
	).Map(func(vals []interface{}) domain.RetryOptions {
		return domain.RetryOptions{
			MaxAttempts:       vals[0].(int),
			InitialDelay:      time.Duration(vals[1].(int)) * time.Millisecond,
			MaxDelay:          time.Duration(vals[2].(int)) * time.Millisecond,
			BackoffMultiplier: vals[3].(float64),
		}
	})
}

// GenErrorCode generates codes spanning every classification band, including
// values that fall between the named constants.
func GenErrorCode() gopter.Gen {
	return gen.IntRange(0, 9999).Map(func(i int) domain.Code {
		return domain.Code(i)
	})
}

// GenOperationName generates dot-namespaced operation names such as
// "screenshot.viewport".
func GenOperationName() gopter.Gen {
	segment := gen.AlphaString().Map(func(s string) string {
		s = strings.ToLower(s)
		if len(s) >= 16 {
			s = s[:15]
		}
		if len(s) == 0 {
			s = "op"
		}
		return s
	})
	return gopter.CombineGens(segment, segment).Map(func(vals []interface{}) string {
		return vals[0].(string) + "." + vals[1].(string)
	})
}
