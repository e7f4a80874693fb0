// Package ratelimit implements per-operation-pattern admission control with
// four interchangeable algorithms.
package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
)

// Limiter maintains admission counters per operation-name pattern. Window
// state is owned exclusively by the limiter and mutated only through its
// operations; statistics return copies, never live references. Admission
// decisions for the same pattern are serialized by a per-pattern mutex, so
// concurrent checks can never both consume the last unit of capacity.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*entry

	clock  domain.Clock
	logger *slog.Logger
	events *domain.EventBuilder
	stats  *statsCollector
}

// Config holds limiter creation options.
type Config struct {
	Clock        domain.Clock
	Logger       *slog.Logger
	EventBuilder *domain.EventBuilder
}

// New creates a rate limiter.
func New(cfg Config) *Limiter {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		entries: make(map[string]*entry),
		clock:   clock,
		logger:  logger,
		events:  cfg.EventBuilder,
		stats:   newStatsCollector(clock.Now()),
	}
}

// entry is the per-pattern admission state. Its mutex serializes the
// check-and-reserve critical section required by the ordering guarantee.
type entry struct {
	mu      sync.Mutex
	pattern string
	rule    domain.RateLimitRule
	state   windowState

	adjust      *adjustment
	outstanding int
	lastAccess  time.Time
}

// adjustment is a temporary shadow rule created by AdjustLimit. It reverts
// via a scheduled timer, never by checking elapsed time on calls, so the
// original rule is restored even with no further traffic.
type adjustment struct {
	multiplier float64
	expiresAt  time.Time
	timer      domain.Timer
}

func (e *entry) effectiveMax() int {
	if e.adjust == nil {
		return e.rule.MaxOperations
	}
	eff := int(math.Round(float64(e.rule.MaxOperations) * e.adjust.multiplier))
	if eff < 0 {
		eff = 0
	}
	return eff
}

// ConfigureLimit installs a rule for a pattern, replacing any existing rule
// and discarding its window state and pending adjustment.
func (l *Limiter) ConfigureLimit(pattern string, rule domain.RateLimitRule) error {
	if !domain.ValidPattern(pattern) {
		return domain.NewInvalidInputError("ratelimit.configure", fmt.Sprintf("invalid pattern %q", pattern))
	}
	if err := rule.Validate(); err != nil {
		return domain.NewInvalidInputError("ratelimit.configure", err.Error())
	}

	now := l.clock.Now()

	l.mu.Lock()
	if old, ok := l.entries[pattern]; ok {
		old.stopAdjustment()
	}
	l.entries[pattern] = &entry{
		pattern:    pattern,
		rule:       rule,
		state:      newWindowState(rule, now),
		lastAccess: now,
	}
	l.mu.Unlock()

	l.logger.Info("rate limit configured",
		slog.String("pattern", pattern),
		slog.String("algorithm", string(rule.Algorithm)),
		slog.Int("max_operations", rule.MaxOperations),
		slog.Duration("window", rule.Window))

	l.events.Emit(domain.EventLimitConfigured, map[string]any{
		"pattern":        pattern,
		"algorithm":      string(rule.Algorithm),
		"max_operations": rule.MaxOperations,
		"window":         rule.Window.String(),
	})
	return nil
}

// RemoveLimit deletes the rule for a pattern. It reports whether a rule was
// present.
func (l *Limiter) RemoveLimit(pattern string) bool {
	l.mu.Lock()
	e, ok := l.entries[pattern]
	if ok {
		e.stopAdjustment()
		delete(l.entries, pattern)
	}
	l.mu.Unlock()

	if ok {
		l.logger.Info("rate limit removed", slog.String("pattern", pattern))
		l.events.Emit(domain.EventLimitRemoved, map[string]any{"pattern": pattern})
	}
	return ok
}

// GetLimit returns the configured rule for an exact pattern.
func (l *Limiter) GetLimit(pattern string) (domain.RateLimitRule, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[pattern]
	if !ok {
		return domain.RateLimitRule{}, false
	}
	return e.rule, true
}

// GetAllLimits returns a copy of all configured rules keyed by pattern.
func (l *Limiter) GetAllLimits() map[string]domain.RateLimitRule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rules := make(map[string]domain.RateLimitRule, len(l.entries))
	for pattern, e := range l.entries {
		rules[pattern] = e.rule
	}
	return rules
}

// match finds the most specific configured pattern for an operation name:
// an exact match wins over wildcards, and among wildcard prefixes the
// longest wins.
func (l *Limiter) match(operation string) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if e, ok := l.entries[operation]; ok {
		return e
	}

	var best *entry
	bestLen := -1
	for pattern, e := range l.entries {
		if !strings.HasSuffix(pattern, ".*") {
			continue
		}
		prefix := pattern[:len(pattern)-1] // keep the trailing dot
		if strings.HasPrefix(operation, prefix) && len(prefix) > bestLen {
			best = e
			bestLen = len(prefix)
		}
	}
	return best
}

// CheckLimit evaluates admission without recording usage.
func (l *Limiter) CheckLimit(operation string, weight int, metadata map[string]any) domain.RateLimitDecision {
	weight = normalizeWeight(weight)

	e := l.match(operation)
	if e == nil {
		l.stats.record(operation, true)
		return unlimitedDecision()
	}

	now := l.clock.Now()
	e.mu.Lock()
	res := e.state.evaluate(now, weight, e.effectiveMax())
	decision := e.decision(res, now)
	e.lastAccess = now
	e.mu.Unlock()

	l.stats.record(operation, decision.Allowed)
	if !decision.Allowed {
		l.emitDenied(operation, decision)
	}
	return decision
}

// Reservation is a provisional admission produced by Reserve. The reserved
// weight counts against the pattern's capacity until the caller either
// commits it (on operation success) or releases it (on failure, timeout, or
// cancellation), so denied capacity is never permanently lost.
type Reservation struct {
	decision domain.RateLimitDecision

	mu    sync.Mutex
	entry *entry
	undo  func()
	done  bool
}

// Decision returns the admission decision the reservation was made under.
func (r *Reservation) Decision() domain.RateLimitDecision { return r.decision }

// Commit finalizes the reserved usage. Safe to call at most once; later
// calls and calls after Release are no-ops.
func (r *Reservation) Commit() {
	r.settle(false)
}

// Release returns the reserved capacity. No-op after Commit.
func (r *Reservation) Release() {
	r.settle(true)
}

func (r *Reservation) settle(undo bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	if r.entry == nil {
		return
	}
	r.entry.mu.Lock()
	if undo && r.undo != nil {
		r.undo()
	}
	r.entry.outstanding--
	r.entry.mu.Unlock()
}

// Reserve atomically checks admission and, when allowed, reserves the weight
// against the pattern's capacity. This is the check-and-reserve critical
// section the execution pipeline relies on.
func (l *Limiter) Reserve(operation string, weight int, metadata map[string]any) *Reservation {
	weight = normalizeWeight(weight)

	e := l.match(operation)
	if e == nil {
		l.stats.record(operation, true)
		return &Reservation{decision: unlimitedDecision(), done: true}
	}

	now := l.clock.Now()
	e.mu.Lock()
	res := e.state.evaluate(now, weight, e.effectiveMax())
	decision := e.decision(res, now)
	e.lastAccess = now

	rsv := &Reservation{decision: decision}
	if decision.Allowed {
		rsv.entry = e
		rsv.undo = e.state.reserve(now, weight, e.effectiveMax())
		e.outstanding++
		l.stats.updatePeak(operation, e.outstanding)
	} else {
		rsv.done = true
	}
	e.mu.Unlock()

	l.stats.record(operation, decision.Allowed)
	if !decision.Allowed {
		l.emitDenied(operation, decision)
	}
	return rsv
}

// RecordUsage commits usage unconditionally. Callers must invoke it only
// after the protected operation actually succeeded.
func (l *Limiter) RecordUsage(operation string, weight int, metadata map[string]any) {
	weight = normalizeWeight(weight)

	e := l.match(operation)
	if e == nil {
		return
	}

	now := l.clock.Now()
	e.mu.Lock()
	e.state.record(now, weight, e.effectiveMax())
	e.lastAccess = now
	e.mu.Unlock()
}

// CheckAndRecord is the atomic combination of CheckLimit and RecordUsage,
// required whenever check-then-act races are possible.
func (l *Limiter) CheckAndRecord(operation string, weight int, metadata map[string]any) domain.RateLimitDecision {
	rsv := l.Reserve(operation, weight, metadata)
	if rsv.Decision().Allowed {
		rsv.Commit()
	}
	return rsv.Decision()
}

// Reset discards window state. With an empty operation it resets every
// pattern; otherwise only the pattern matching the operation.
func (l *Limiter) Reset(operation string) {
	if operation == "" {
		l.mu.RLock()
		entries := make([]*entry, 0, len(l.entries))
		for _, e := range l.entries {
			entries = append(entries, e)
		}
		l.mu.RUnlock()
		for _, e := range entries {
			e.mu.Lock()
			e.state.reset()
			e.mu.Unlock()
		}
		return
	}
	if e := l.match(operation); e != nil {
		e.mu.Lock()
		e.state.reset()
		e.mu.Unlock()
	}
}

// Cleanup reclaims window state for patterns that have been idle for at
// least one full window and have no outstanding reservations. It returns
// the number of patterns whose state was reclaimed.
func (l *Limiter) Cleanup() int {
	now := l.clock.Now()

	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	evicted := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.outstanding == 0 &&
			now.Sub(e.lastAccess) >= e.rule.Window &&
			e.state.idle(now, e.effectiveMax()) {
			e.state.reset()
			evicted++
		}
		e.mu.Unlock()
	}

	if evicted > 0 {
		l.logger.Debug("rate limit state reclaimed", slog.Int("evicted", evicted))
	}
	return evicted
}

// AdjustLimit temporarily scales the effective capacity of a pattern by
// multiplier for the given duration, then automatically reverts to the
// original rule. Reversion is driven by a scheduled timer, so it happens
// even with no further traffic.
func (l *Limiter) AdjustLimit(pattern string, multiplier float64, duration time.Duration) error {
	if multiplier <= 0 {
		return domain.NewInvalidInputError("ratelimit.adjust", "multiplier must be positive")
	}
	if duration <= 0 {
		return domain.NewInvalidInputError("ratelimit.adjust", "duration must be positive")
	}

	l.mu.RLock()
	e, ok := l.entries[pattern]
	l.mu.RUnlock()
	if !ok {
		return domain.NewInvalidInputError("ratelimit.adjust", fmt.Sprintf("no rule for pattern %q", pattern))
	}

	now := l.clock.Now()
	adj := &adjustment{multiplier: multiplier, expiresAt: now.Add(duration)}

	e.mu.Lock()
	e.stopAdjustment()
	e.adjust = adj
	e.mu.Unlock()

	adj.timer = l.clock.AfterFunc(duration, func() {
		e.mu.Lock()
		reverted := e.adjust == adj
		if reverted {
			e.adjust = nil
		}
		e.mu.Unlock()

		if reverted {
			l.logger.Info("rate limit adjustment reverted", slog.String("pattern", pattern))
			l.events.Emit(domain.EventLimitReverted, map[string]any{"pattern": pattern})
		}
	})

	l.logger.Info("rate limit adjusted",
		slog.String("pattern", pattern),
		slog.Float64("multiplier", multiplier),
		slog.Duration("duration", duration))

	l.events.Emit(domain.EventLimitAdjusted, map[string]any{
		"pattern":    pattern,
		"multiplier": multiplier,
		"duration":   duration.String(),
	})
	return nil
}

// stopAdjustment must be called with either the limiter or the entry mutex
// held consistently with other adjustment access.
func (e *entry) stopAdjustment() {
	if e.adjust != nil {
		if e.adjust.timer != nil {
			e.adjust.timer.Stop()
		}
		e.adjust = nil
	}
}

// Stats returns a snapshot of global and per-operation admission statistics.
func (l *Limiter) Stats() domain.RateLimitStats {
	now := l.clock.Now()

	memBytes := 0
	l.mu.RLock()
	for _, e := range l.entries {
		e.mu.Lock()
		memBytes += e.state.memoryBytes()
		e.mu.Unlock()
	}
	l.mu.RUnlock()

	return l.stats.snapshot(now, float64(memBytes)/1024.0)
}

// decision builds a caller-facing decision from an algorithm verdict. Must
// be called with the entry mutex held.
func (e *entry) decision(res evalResult, now time.Time) domain.RateLimitDecision {
	return domain.RateLimitDecision{
		Allowed:    res.allowed,
		Remaining:  res.remaining,
		ResetAt:    res.resetAt,
		RetryAfter: res.retryAfter,
		Rule:       e.rule,
		Pattern:    e.pattern,
		State:      e.state.snapshot(now),
	}
}

func (l *Limiter) emitDenied(operation string, decision domain.RateLimitDecision) {
	l.logger.Debug("operation denied by rate limit",
		slog.String("operation", operation),
		slog.String("pattern", decision.Pattern),
		slog.Int("remaining", decision.Remaining),
		slog.Duration("retry_after", decision.RetryAfter))

	l.events.Emit(domain.EventRateLimitHit, map[string]any{
		"operation":   operation,
		"pattern":     decision.Pattern,
		"remaining":   decision.Remaining,
		"retry_after": decision.RetryAfter.String(),
	})
}

func unlimitedDecision() domain.RateLimitDecision {
	return domain.RateLimitDecision{Allowed: true, Remaining: -1}
}

func normalizeWeight(weight int) int {
	if weight <= 0 {
		return 1
	}
	return weight
}
