package repositories

import (
	"context"
	"sync"

	"github.com/automation-platform/execution-core/internal/domain"
)

// MemoryRuleRepository keeps rule definitions in process memory. It is used
// when Redis persistence is disabled and in tests.
type MemoryRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]domain.RateLimitRule
}

// NewMemoryRuleRepository creates an empty in-memory repository.
func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{rules: make(map[string]domain.RateLimitRule)}
}

// Save stores a rule under its pattern.
func (r *MemoryRuleRepository) Save(ctx context.Context, pattern string, rule domain.RateLimitRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[pattern] = rule
	return nil
}

// Get retrieves the rule stored for an exact pattern.
func (r *MemoryRuleRepository) Get(ctx context.Context, pattern string) (domain.RateLimitRule, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[pattern]
	return rule, ok, nil
}

// Delete removes the rule for a pattern.
func (r *MemoryRuleRepository) Delete(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, pattern)
	return nil
}

// List returns a copy of all stored rules keyed by pattern.
func (r *MemoryRuleRepository) List(ctx context.Context) (map[string]domain.RateLimitRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := make(map[string]domain.RateLimitRule, len(r.rules))
	for pattern, rule := range r.rules {
		rules[pattern] = rule
	}
	return rules, nil
}
