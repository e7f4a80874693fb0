package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Algorithm selects the admission algorithm used by a rate limit rule.
type Algorithm string

const (
	SlidingWindow Algorithm = "sliding_window"
	TokenBucket   Algorithm = "token_bucket"
	FixedWindow   Algorithm = "fixed_window"
	LeakyBucket   Algorithm = "leaky_bucket"
)

// Valid reports whether the algorithm is one of the four supported ones.
func (a Algorithm) Valid() bool {
	switch a {
	case SlidingWindow, TokenBucket, FixedWindow, LeakyBucket:
		return true
	}
	return false
}

// RateLimitRule defines admission behavior for an operation-name pattern.
// A pattern is either an exact dot-namespaced operation name
// ("screenshot.viewport") or a wildcard prefix ("screenshot.*").
type RateLimitRule struct {
	MaxOperations int           `json:"max_operations" yaml:"maxOperations" validate:"min=1"`
	Window        time.Duration `json:"window" yaml:"window" validate:"min=1ms"`
	Algorithm     Algorithm     `json:"algorithm" yaml:"algorithm"`
	BurstSize     int           `json:"burst_size,omitempty" yaml:"burstSize,omitempty"`
	RuleID        string        `json:"rule_id,omitempty" yaml:"ruleId,omitempty"`
}

// UnmarshalYAML decodes a rule whose window is written as a duration string
// such as "500ms" or "1m".
func (r *RateLimitRule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxOperations int       `yaml:"maxOperations"`
		Window        string    `yaml:"window"`
		Algorithm     Algorithm `yaml:"algorithm"`
		BurstSize     int       `yaml:"burstSize"`
		RuleID        string    `yaml:"ruleId"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	window, err := time.ParseDuration(raw.Window)
	if err != nil {
		return fmt.Errorf("invalid window %q: %w", raw.Window, err)
	}
	*r = RateLimitRule{
		MaxOperations: raw.MaxOperations,
		Window:        window,
		Algorithm:     raw.Algorithm,
		BurstSize:     raw.BurstSize,
		RuleID:        raw.RuleID,
	}
	return nil
}

// Validate checks the rule's fields.
func (r RateLimitRule) Validate() error {
	if r.MaxOperations <= 0 {
		return errors.New("max operations must be positive")
	}
	if r.Window <= 0 {
		return errors.New("window must be positive")
	}
	if !r.Algorithm.Valid() {
		return errors.New("unsupported algorithm: " + string(r.Algorithm))
	}
	if r.BurstSize < 0 {
		return errors.New("burst size must not be negative")
	}
	return nil
}

// ValidPattern reports whether s is a usable operation-name pattern.
func ValidPattern(s string) bool {
	if s == "" {
		return false
	}
	if star := strings.Index(s, "*"); star >= 0 {
		// Only a trailing ".*" wildcard is supported.
		return strings.HasSuffix(s, ".*") && star == len(s)-1
	}
	return true
}

// RateLimitDecision is the result of an admission evaluation.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Rule       RateLimitRule
	Pattern    string
	State      AlgorithmState
}

// AlgorithmState is an immutable snapshot of a pattern's window state. Only
// the fields relevant to the rule's algorithm are populated.
type AlgorithmState struct {
	Algorithm   Algorithm `json:"algorithm"`
	Samples     int       `json:"samples,omitempty"`
	UsedWeight  int       `json:"used_weight,omitempty"`
	Tokens      float64   `json:"tokens,omitempty"`
	Level       float64   `json:"level,omitempty"`
	WindowStart time.Time `json:"window_start,omitempty"`
	Count       int       `json:"count,omitempty"`
}

// OperationStats aggregates admission statistics for a single operation name.
type OperationStats struct {
	Checked   int64   `json:"checked"`
	Allowed   int64   `json:"allowed"`
	Denied    int64   `json:"denied"`
	Peak      int     `json:"peak"`
	AllowRate float64 `json:"allow_rate"`
}

// RateLimitStats aggregates admission statistics across all operations.
type RateLimitStats struct {
	TotalChecked        int64                     `json:"total_checked"`
	Allowed             int64                     `json:"allowed"`
	Denied              int64                     `json:"denied"`
	AllowRate           float64                   `json:"allow_rate"`
	OperationsPerSecond float64                   `json:"operations_per_second"`
	PeakOperations      int                       `json:"peak_operations"`
	PerOperation        map[string]OperationStats `json:"per_operation"`
	MemoryUsageKB       float64                   `json:"memory_usage_kb"`
}
