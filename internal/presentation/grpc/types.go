// Package grpc provides gRPC types for the execution core. These types
// mirror the protobuf definitions until proto generation is configured.
package grpc

import (
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// RateLimitRule defines admission behavior for an operation pattern.
type RateLimitRule struct {
	MaxOperations int32                `json:"max_operations"`
	Window        *durationpb.Duration `json:"window"`
	Algorithm     string               `json:"algorithm"`
	BurstSize     int32                `json:"burst_size,omitempty"`
	RuleID        string               `json:"rule_id,omitempty"`
}

// RateLimitDecision is the outcome of an admission check.
type RateLimitDecision struct {
	Allowed    bool                   `json:"allowed"`
	Remaining  int32                  `json:"remaining"`
	ResetAt    *timestamppb.Timestamp `json:"reset_at,omitempty"`
	RetryAfter *durationpb.Duration   `json:"retry_after,omitempty"`
	Pattern    string                 `json:"pattern,omitempty"`
	Rule       *RateLimitRule         `json:"rule,omitempty"`
}

// ConfigureLimitRequest installs a rule for a pattern.
type ConfigureLimitRequest struct {
	Pattern string         `json:"pattern"`
	Rule    *RateLimitRule `json:"rule"`
}

// ConfigureLimitResponse confirms the installed rule.
type ConfigureLimitResponse struct {
	Pattern string         `json:"pattern"`
	Rule    *RateLimitRule `json:"rule"`
}

// GetLimitRequest retrieves a rule by exact pattern.
type GetLimitRequest struct {
	Pattern string `json:"pattern"`
}

// GetLimitResponse returns the requested rule.
type GetLimitResponse struct {
	Pattern string         `json:"pattern"`
	Rule    *RateLimitRule `json:"rule"`
}

// ListLimitsRequest lists all configured rules.
type ListLimitsRequest struct{}

// LimitEntry pairs a pattern with its rule.
type LimitEntry struct {
	Pattern string         `json:"pattern"`
	Rule    *RateLimitRule `json:"rule"`
}

// ListLimitsResponse returns all configured rules.
type ListLimitsResponse struct {
	Limits []*LimitEntry `json:"limits"`
}

// RemoveLimitRequest removes the rule for a pattern.
type RemoveLimitRequest struct {
	Pattern string `json:"pattern"`
}

// RemoveLimitResponse confirms removal.
type RemoveLimitResponse struct {
	Removed bool `json:"removed"`
}

// AdjustLimitRequest temporarily scales a pattern's capacity.
type AdjustLimitRequest struct {
	Pattern    string               `json:"pattern"`
	Multiplier float64              `json:"multiplier"`
	Duration   *durationpb.Duration `json:"duration"`
}

// AdjustLimitResponse confirms the adjustment.
type AdjustLimitResponse struct {
	Pattern   string                 `json:"pattern"`
	RevertsAt *timestamppb.Timestamp `json:"reverts_at"`
}

// CheckLimitRequest evaluates admission without recording usage.
type CheckLimitRequest struct {
	Operation string `json:"operation"`
	Weight    int32  `json:"weight"`
}

// CheckLimitResponse returns the admission decision.
type CheckLimitResponse struct {
	Decision *RateLimitDecision `json:"decision"`
}

// ResetLimitsRequest discards window state. An empty operation resets all
// patterns.
type ResetLimitsRequest struct {
	Operation string `json:"operation"`
}

// ResetLimitsResponse confirms the reset.
type ResetLimitsResponse struct{}

// GetStatsRequest retrieves admission statistics.
type GetStatsRequest struct{}

// OperationStats aggregates counters for one operation name.
type OperationStats struct {
	Checked   int64   `json:"checked"`
	Allowed   int64   `json:"allowed"`
	Denied    int64   `json:"denied"`
	Peak      int32   `json:"peak"`
	AllowRate float64 `json:"allow_rate"`
}

// GetStatsResponse returns aggregated admission statistics.
type GetStatsResponse struct {
	TotalChecked        int64                      `json:"total_checked"`
	Allowed             int64                      `json:"allowed"`
	Denied              int64                      `json:"denied"`
	AllowRate           float64                    `json:"allow_rate"`
	OperationsPerSecond float64                    `json:"operations_per_second"`
	PeakOperations      int32                      `json:"peak_operations"`
	PerOperation        map[string]*OperationStats `json:"per_operation"`
	MemoryUsageKb       float64                    `json:"memory_usage_kb"`
}
