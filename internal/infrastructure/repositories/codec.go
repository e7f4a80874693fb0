package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
)

// ruleDTO is the stored format for a rate limit rule. Durations are stored
// as strings so the payload stays readable in Redis.
type ruleDTO struct {
	MaxOperations int    `json:"max_operations"`
	Window        string `json:"window"`
	Algorithm     string `json:"algorithm"`
	BurstSize     int    `json:"burst_size,omitempty"`
	RuleID        string `json:"rule_id,omitempty"`
}

func encodeRule(rule domain.RateLimitRule) (string, error) {
	dto := ruleDTO{
		MaxOperations: rule.MaxOperations,
		Window:        rule.Window.String(),
		Algorithm:     string(rule.Algorithm),
		BurstSize:     rule.BurstSize,
		RuleID:        rule.RuleID,
	}
	bytes, err := json.Marshal(dto)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func decodeRule(data string) (domain.RateLimitRule, error) {
	var dto ruleDTO
	if err := json.Unmarshal([]byte(data), &dto); err != nil {
		return domain.RateLimitRule{}, err
	}

	window, err := time.ParseDuration(dto.Window)
	if err != nil {
		return domain.RateLimitRule{}, fmt.Errorf("invalid window %q: %w", dto.Window, err)
	}

	rule := domain.RateLimitRule{
		MaxOperations: dto.MaxOperations,
		Window:        window,
		Algorithm:     domain.Algorithm(dto.Algorithm),
		BurstSize:     dto.BurstSize,
		RuleID:        dto.RuleID,
	}
	if err := rule.Validate(); err != nil {
		return domain.RateLimitRule{}, err
	}
	return rule, nil
}
