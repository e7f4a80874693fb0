package ratelimit

import (
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
)

// evalResult is an algorithm's admission verdict for a prospective weight.
type evalResult struct {
	allowed    bool
	remaining  int
	resetAt    time.Time
	retryAfter time.Duration
}

// windowState tracks usage for one pattern under one algorithm. It is owned
// exclusively by the limiter and always accessed under the entry mutex.
// maxOps is passed per call so temporary limit adjustments take effect
// without rebuilding state.
type windowState interface {
	// evaluate computes the admission verdict without committing usage.
	evaluate(now time.Time, weight, maxOps int) evalResult

	// reserve commits usage for an admitted weight and returns an undo
	// function that releases it.
	reserve(now time.Time, weight, maxOps int) func()

	// record commits usage unconditionally.
	record(now time.Time, weight, maxOps int)

	// snapshot returns a copy of the state for statistics.
	snapshot(now time.Time) domain.AlgorithmState

	// idle reports whether the state holds no live usage.
	idle(now time.Time, maxOps int) bool

	reset()

	// memoryBytes approximates the tracked state's footprint.
	memoryBytes() int
}

func newWindowState(rule domain.RateLimitRule, now time.Time) windowState {
	switch rule.Algorithm {
	case domain.TokenBucket:
		b := &bucketState{
			window:     rule.Window,
			burst:      rule.BurstSize,
			lastRefill: now,
		}
		b.tokens = b.capacity(rule.MaxOperations)
		return b
	case domain.FixedWindow:
		return &fixedState{window: rule.Window, windowStart: now.Truncate(rule.Window)}
	case domain.LeakyBucket:
		return &leakyState{window: rule.Window, lastLeak: now}
	default:
		return &slidingState{window: rule.Window}
	}
}

// sliding window: timestamped weighted samples within [now-window, now].

type sample struct {
	at     time.Time
	weight int
	id     uint64
}

type slidingState struct {
	window  time.Duration
	samples []sample
	used    int
	nextID  uint64
}

func (s *slidingState) prune(now time.Time) {
	cutoff := now.Add(-s.window)
	firstValid := 0
	for i, smp := range s.samples {
		if smp.at.After(cutoff) {
			firstValid = i
			break
		}
		s.used -= smp.weight
		firstValid = i + 1
	}
	if firstValid > 0 {
		s.samples = s.samples[firstValid:]
	}
}

func (s *slidingState) evaluate(now time.Time, weight, maxOps int) evalResult {
	s.prune(now)

	res := evalResult{
		allowed:   s.used+weight <= maxOps,
		remaining: maxOps - s.used,
		resetAt:   now,
	}
	if res.remaining < 0 {
		res.remaining = 0
	}
	if len(s.samples) > 0 {
		res.resetAt = s.samples[0].at.Add(s.window)
	}
	if !res.allowed {
		res.retryAfter = s.retryAfter(now, weight, maxOps)
	}
	return res
}

// retryAfter walks samples oldest-first until enough weight has aged out for
// the prospective weight to fit.
func (s *slidingState) retryAfter(now time.Time, weight, maxOps int) time.Duration {
	needed := s.used + weight - maxOps
	freed := 0
	for _, smp := range s.samples {
		freed += smp.weight
		if freed >= needed {
			wait := smp.at.Add(s.window).Sub(now)
			if wait < 0 {
				wait = 0
			}
			return wait
		}
	}
	return s.window
}

func (s *slidingState) reserve(now time.Time, weight, maxOps int) func() {
	s.nextID++
	id := s.nextID
	s.samples = append(s.samples, sample{at: now, weight: weight, id: id})
	s.used += weight
	return func() {
		for i, smp := range s.samples {
			if smp.id == id {
				s.samples = append(s.samples[:i], s.samples[i+1:]...)
				s.used -= weight
				return
			}
		}
	}
}

func (s *slidingState) record(now time.Time, weight, maxOps int) {
	s.nextID++
	s.samples = append(s.samples, sample{at: now, weight: weight, id: s.nextID})
	s.used += weight
}

func (s *slidingState) snapshot(now time.Time) domain.AlgorithmState {
	s.prune(now)
	return domain.AlgorithmState{
		Algorithm:  domain.SlidingWindow,
		Samples:    len(s.samples),
		UsedWeight: s.used,
	}
}

func (s *slidingState) idle(now time.Time, maxOps int) bool {
	s.prune(now)
	return len(s.samples) == 0
}

func (s *slidingState) reset() {
	s.samples = nil
	s.used = 0
}

func (s *slidingState) memoryBytes() int {
	return 48 + len(s.samples)*32
}

// token bucket: capacity burst (maxOps when no burst is set), lazy refill at
// maxOps per window.

type bucketState struct {
	window     time.Duration
	burst      int
	tokens     float64
	lastRefill time.Time
}

func (b *bucketState) capacity(maxOps int) float64 {
	if b.burst > 0 {
		return float64(b.burst)
	}
	return float64(maxOps)
}

func (b *bucketState) ratePerNs(maxOps int) float64 {
	return float64(maxOps) / float64(b.window)
}

func (b *bucketState) refill(now time.Time, maxOps int) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		b.tokens += float64(elapsed) * b.ratePerNs(maxOps)
		if limit := b.capacity(maxOps); b.tokens > limit {
			b.tokens = limit
		}
	}
	b.lastRefill = now
}

func (b *bucketState) evaluate(now time.Time, weight, maxOps int) evalResult {
	b.refill(now, maxOps)

	res := evalResult{
		allowed:   b.tokens >= float64(weight),
		remaining: int(b.tokens),
		resetAt:   now,
	}
	if res.remaining < 0 {
		res.remaining = 0
	}
	if missing := b.capacity(maxOps) - b.tokens; missing > 0 {
		res.resetAt = now.Add(time.Duration(missing / b.ratePerNs(maxOps)))
	}
	if !res.allowed {
		res.retryAfter = time.Duration((float64(weight) - b.tokens) / b.ratePerNs(maxOps))
	}
	return res
}

func (b *bucketState) reserve(now time.Time, weight, maxOps int) func() {
	b.tokens -= float64(weight)
	return func() {
		b.tokens += float64(weight)
		if limit := b.capacity(maxOps); b.tokens > limit {
			b.tokens = limit
		}
	}
}

func (b *bucketState) record(now time.Time, weight, maxOps int) {
	b.refill(now, maxOps)
	b.tokens -= float64(weight)
}

func (b *bucketState) snapshot(now time.Time) domain.AlgorithmState {
	return domain.AlgorithmState{
		Algorithm: domain.TokenBucket,
		Tokens:    b.tokens,
	}
}

func (b *bucketState) idle(now time.Time, maxOps int) bool {
	b.refill(now, maxOps)
	return b.tokens >= b.capacity(maxOps)
}

func (b *bucketState) reset() {
	b.tokens = 0 // refilled to capacity on next evaluate
	b.lastRefill = time.Time{}
}

func (b *bucketState) memoryBytes() int { return 40 }

// fixed window: a counter reset on each boundary-aligned window start.

type fixedState struct {
	window      time.Duration
	windowStart time.Time
	count       int
}

func (f *fixedState) roll(now time.Time) {
	start := now.Truncate(f.window)
	if !start.Equal(f.windowStart) {
		f.windowStart = start
		f.count = 0
	}
}

func (f *fixedState) evaluate(now time.Time, weight, maxOps int) evalResult {
	f.roll(now)

	res := evalResult{
		allowed:   f.count+weight <= maxOps,
		remaining: maxOps - f.count,
		resetAt:   f.windowStart.Add(f.window),
	}
	if res.remaining < 0 {
		res.remaining = 0
	}
	if !res.allowed {
		res.retryAfter = res.resetAt.Sub(now)
	}
	return res
}

func (f *fixedState) reserve(now time.Time, weight, maxOps int) func() {
	f.roll(now)
	f.count += weight
	start := f.windowStart
	return func() {
		// Only undo within the same window; a rolled window already
		// discarded the usage.
		if f.windowStart.Equal(start) && f.count >= weight {
			f.count -= weight
		}
	}
}

func (f *fixedState) record(now time.Time, weight, maxOps int) {
	f.roll(now)
	f.count += weight
}

func (f *fixedState) snapshot(now time.Time) domain.AlgorithmState {
	f.roll(now)
	return domain.AlgorithmState{
		Algorithm:   domain.FixedWindow,
		WindowStart: f.windowStart,
		Count:       f.count,
	}
}

func (f *fixedState) idle(now time.Time, maxOps int) bool {
	f.roll(now)
	return f.count == 0
}

func (f *fixedState) reset() {
	f.count = 0
	f.windowStart = time.Time{}
}

func (f *fixedState) memoryBytes() int { return 40 }

// leaky bucket: a level that decays linearly at maxOps per window.

type leakyState struct {
	window   time.Duration
	level    float64
	lastLeak time.Time
}

func (l *leakyState) ratePerNs(maxOps int) float64 {
	return float64(maxOps) / float64(l.window)
}

func (l *leakyState) leak(now time.Time, maxOps int) {
	elapsed := now.Sub(l.lastLeak)
	if elapsed > 0 {
		l.level -= float64(elapsed) * l.ratePerNs(maxOps)
		if l.level < 0 {
			l.level = 0
		}
	}
	l.lastLeak = now
}

func (l *leakyState) evaluate(now time.Time, weight, maxOps int) evalResult {
	l.leak(now, maxOps)

	res := evalResult{
		allowed:   l.level+float64(weight) <= float64(maxOps),
		remaining: int(float64(maxOps) - l.level),
		resetAt:   now.Add(time.Duration(l.level / l.ratePerNs(maxOps))),
	}
	if res.remaining < 0 {
		res.remaining = 0
	}
	if !res.allowed {
		overflow := l.level + float64(weight) - float64(maxOps)
		res.retryAfter = time.Duration(overflow / l.ratePerNs(maxOps))
	}
	return res
}

func (l *leakyState) reserve(now time.Time, weight, maxOps int) func() {
	l.level += float64(weight)
	return func() {
		l.level -= float64(weight)
		if l.level < 0 {
			l.level = 0
		}
	}
}

func (l *leakyState) record(now time.Time, weight, maxOps int) {
	l.leak(now, maxOps)
	l.level += float64(weight)
}

func (l *leakyState) snapshot(now time.Time) domain.AlgorithmState {
	return domain.AlgorithmState{
		Algorithm: domain.LeakyBucket,
		Level:     l.level,
	}
}

func (l *leakyState) idle(now time.Time, maxOps int) bool {
	l.leak(now, maxOps)
	return l.level <= 0
}

func (l *leakyState) reset() {
	l.level = 0
	l.lastLeak = time.Time{}
}

func (l *leakyState) memoryBytes() int { return 40 }
