package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock()
	return New(Config{Clock: clock}), clock
}

func configure(t *testing.T, l *Limiter, pattern string, rule domain.RateLimitRule) {
	t.Helper()
	require.NoError(t, l.ConfigureLimit(pattern, rule))
}

func TestConfigureLimitValidation(t *testing.T) {
	l, _ := newTestLimiter(t)

	valid := domain.RateLimitRule{MaxOperations: 10, Window: time.Second, Algorithm: domain.SlidingWindow}

	assert.Error(t, l.ConfigureLimit("", valid))
	assert.Error(t, l.ConfigureLimit("a.*.b", valid))
	assert.Error(t, l.ConfigureLimit("op", domain.RateLimitRule{MaxOperations: 0, Window: time.Second, Algorithm: domain.SlidingWindow}))
	assert.Error(t, l.ConfigureLimit("op", domain.RateLimitRule{MaxOperations: 1, Window: 0, Algorithm: domain.SlidingWindow}))
	assert.Error(t, l.ConfigureLimit("op", domain.RateLimitRule{MaxOperations: 1, Window: time.Second, Algorithm: "adaptive"}))

	assert.NoError(t, l.ConfigureLimit("screenshot.viewport", valid))
	assert.NoError(t, l.ConfigureLimit("screenshot.*", valid))
}

func TestGetAndRemoveLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	rule := domain.RateLimitRule{MaxOperations: 5, Window: time.Minute, Algorithm: domain.TokenBucket}
	configure(t, l, "fetch.page", rule)

	got, ok := l.GetLimit("fetch.page")
	require.True(t, ok)
	assert.Equal(t, rule, got)

	_, ok = l.GetLimit("fetch.other")
	assert.False(t, ok)

	all := l.GetAllLimits()
	assert.Len(t, all, 1)

	assert.True(t, l.RemoveLimit("fetch.page"))
	assert.False(t, l.RemoveLimit("fetch.page"))
	_, ok = l.GetLimit("fetch.page")
	assert.False(t, ok)
}

func TestUnconfiguredOperationsAreUnlimited(t *testing.T) {
	l, _ := newTestLimiter(t)

	d := l.CheckAndRecord("anything.goes", 1, nil)
	assert.True(t, d.Allowed)
	assert.Equal(t, -1, d.Remaining)
}

func TestExactPatternBeatsWildcard(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "screenshot.*", domain.RateLimitRule{MaxOperations: 100, Window: time.Second, Algorithm: domain.FixedWindow})
	configure(t, l, "screenshot.viewport", domain.RateLimitRule{MaxOperations: 1, Window: time.Second, Algorithm: domain.FixedWindow})

	d := l.CheckAndRecord("screenshot.viewport", 1, nil)
	assert.Equal(t, "screenshot.viewport", d.Pattern)

	d = l.CheckAndRecord("screenshot.fullpage", 1, nil)
	assert.Equal(t, "screenshot.*", d.Pattern)
}

func TestLongestWildcardPrefixWins(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "dom.*", domain.RateLimitRule{MaxOperations: 100, Window: time.Second, Algorithm: domain.FixedWindow})
	configure(t, l, "dom.query.*", domain.RateLimitRule{MaxOperations: 10, Window: time.Second, Algorithm: domain.FixedWindow})

	d := l.CheckLimit("dom.query.selector", 1, nil)
	assert.Equal(t, "dom.query.*", d.Pattern)

	d = l.CheckLimit("dom.click", 1, nil)
	assert.Equal(t, "dom.*", d.Pattern)
}

func TestFixedWindowDeniesBeyondLimit(t *testing.T) {
	l, clock := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 3, Window: time.Second, Algorithm: domain.FixedWindow})

	for i := 0; i < 3; i++ {
		d := l.CheckAndRecord("fetch.page", 1, nil)
		require.True(t, d.Allowed, "call %d should be admitted", i+1)
	}

	d := l.CheckAndRecord("fetch.page", 1, nil)
	require.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Second)

	clock.Advance(time.Second)
	d = l.CheckAndRecord("fetch.page", 1, nil)
	assert.True(t, d.Allowed)
}

func TestTokenBucketAllowsBurstThenRefills(t *testing.T) {
	l, clock := newTestLimiter(t)
	configure(t, l, "type.text", domain.RateLimitRule{
		MaxOperations: 2, Window: time.Second, Algorithm: domain.TokenBucket, BurstSize: 3,
	})

	// BurstSize is the bucket capacity.
	for i := 0; i < 3; i++ {
		d := l.CheckAndRecord("type.text", 1, nil)
		require.True(t, d.Allowed, "call %d should be admitted", i+1)
	}

	d := l.CheckAndRecord("type.text", 1, nil)
	require.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// Refill rate is MaxOperations per window: one token per 500ms.
	clock.Advance(600 * time.Millisecond)
	d = l.CheckAndRecord("type.text", 1, nil)
	assert.True(t, d.Allowed)
}

func TestTokenBucketWithoutBurstCapsAtLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "type.text", domain.RateLimitRule{
		MaxOperations: 2, Window: time.Second, Algorithm: domain.TokenBucket,
	})

	require.True(t, l.CheckAndRecord("type.text", 1, nil).Allowed)
	require.True(t, l.CheckAndRecord("type.text", 1, nil).Allowed)
	assert.False(t, l.CheckAndRecord("type.text", 1, nil).Allowed)
}

func TestSlidingWindowAgesOutSamples(t *testing.T) {
	l, clock := newTestLimiter(t)
	configure(t, l, "click.element", domain.RateLimitRule{MaxOperations: 2, Window: time.Second, Algorithm: domain.SlidingWindow})

	require.True(t, l.CheckAndRecord("click.element", 1, nil).Allowed)
	clock.Advance(400 * time.Millisecond)
	require.True(t, l.CheckAndRecord("click.element", 1, nil).Allowed)

	d := l.CheckAndRecord("click.element", 1, nil)
	require.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Second)

	// The first sample ages out 600ms later, freeing exactly one unit.
	clock.Advance(650 * time.Millisecond)
	assert.True(t, l.CheckAndRecord("click.element", 1, nil).Allowed)
	assert.False(t, l.CheckAndRecord("click.element", 1, nil).Allowed)
}

func TestLeakyBucketDrainsOverTime(t *testing.T) {
	l, clock := newTestLimiter(t)
	configure(t, l, "scroll.page", domain.RateLimitRule{MaxOperations: 2, Window: time.Second, Algorithm: domain.LeakyBucket})

	require.True(t, l.CheckAndRecord("scroll.page", 1, nil).Allowed)
	require.True(t, l.CheckAndRecord("scroll.page", 1, nil).Allowed)
	require.False(t, l.CheckAndRecord("scroll.page", 1, nil).Allowed)

	// Drain rate is MaxOperations per window: one unit per 500ms.
	clock.Advance(600 * time.Millisecond)
	assert.True(t, l.CheckAndRecord("scroll.page", 1, nil).Allowed)
}

func TestWeightedOperations(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 5, Window: time.Second, Algorithm: domain.SlidingWindow})

	require.True(t, l.CheckAndRecord("fetch.page", 3, nil).Allowed)
	assert.False(t, l.CheckAndRecord("fetch.page", 3, nil).Allowed)
	assert.True(t, l.CheckAndRecord("fetch.page", 2, nil).Allowed)

	// Non-positive weight counts as one.
	assert.False(t, l.CheckAndRecord("fetch.page", 0, nil).Allowed)
}

func TestCheckLimitDoesNotConsume(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 1, Window: time.Second, Algorithm: domain.SlidingWindow})

	for i := 0; i < 5; i++ {
		assert.True(t, l.CheckLimit("fetch.page", 1, nil).Allowed)
	}
	assert.True(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)
	assert.False(t, l.CheckLimit("fetch.page", 1, nil).Allowed)
}

func TestReserveReleaseRestoresCapacity(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 1, Window: time.Minute, Algorithm: domain.SlidingWindow})

	rsv := l.Reserve("fetch.page", 1, nil)
	require.True(t, rsv.Decision().Allowed)
	assert.False(t, l.CheckLimit("fetch.page", 1, nil).Allowed)

	rsv.Release()
	assert.True(t, l.CheckLimit("fetch.page", 1, nil).Allowed)

	// Release after the first settle is a no-op.
	rsv.Release()
	rsv.Commit()
	assert.True(t, l.CheckLimit("fetch.page", 1, nil).Allowed)
}

func TestReserveCommitConsumesCapacity(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 1, Window: time.Minute, Algorithm: domain.SlidingWindow})

	rsv := l.Reserve("fetch.page", 1, nil)
	require.True(t, rsv.Decision().Allowed)
	rsv.Commit()

	assert.False(t, l.CheckLimit("fetch.page", 1, nil).Allowed)

	// Release after Commit must not refund.
	rsv.Release()
	assert.False(t, l.CheckLimit("fetch.page", 1, nil).Allowed)
}

func TestConcurrentAdmissionNeverExceedsCapacity(t *testing.T) {
	l, _ := newTestLimiter(t)
	const capacity = 16
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: capacity, Window: time.Minute, Algorithm: domain.SlidingWindow})

	const callers = capacity * 3
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndRecord("fetch.page", 1, nil).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, allowed)
}

func TestAdjustLimitScalesAndReverts(t *testing.T) {
	l, clock := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 2, Window: time.Minute, Algorithm: domain.SlidingWindow})

	require.NoError(t, l.AdjustLimit("fetch.page", 2.0, 10*time.Second))

	for i := 0; i < 4; i++ {
		require.True(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed, "call %d under doubled limit", i+1)
	}
	assert.False(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)

	// The adjustment reverts on its own once the duration elapses.
	clock.Advance(10 * time.Second)
	l.Reset("fetch.page")

	require.True(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)
	require.True(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)
	assert.False(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)
}

func TestAdjustLimitValidation(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 2, Window: time.Minute, Algorithm: domain.SlidingWindow})

	assert.Error(t, l.AdjustLimit("fetch.page", 0, time.Second))
	assert.Error(t, l.AdjustLimit("fetch.page", -1, time.Second))
	assert.Error(t, l.AdjustLimit("fetch.page", 2, 0))
	assert.Error(t, l.AdjustLimit("missing.pattern", 2, time.Second))
}

func TestAdjustLimitReplacedByReconfigure(t *testing.T) {
	l, clock := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 1, Window: time.Minute, Algorithm: domain.SlidingWindow})

	require.NoError(t, l.AdjustLimit("fetch.page", 5.0, time.Hour))
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 1, Window: time.Minute, Algorithm: domain.SlidingWindow})

	// The old adjustment must not apply to the fresh rule, and its timer must
	// not revert anything later.
	require.True(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)
	assert.False(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)
	clock.Advance(2 * time.Hour)
	require.True(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)
	assert.False(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)
}

func TestResetSinglePatternAndAll(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "a.one", domain.RateLimitRule{MaxOperations: 1, Window: time.Minute, Algorithm: domain.SlidingWindow})
	configure(t, l, "b.two", domain.RateLimitRule{MaxOperations: 1, Window: time.Minute, Algorithm: domain.FixedWindow})

	require.True(t, l.CheckAndRecord("a.one", 1, nil).Allowed)
	require.True(t, l.CheckAndRecord("b.two", 1, nil).Allowed)

	l.Reset("a.one")
	assert.True(t, l.CheckLimit("a.one", 1, nil).Allowed)
	assert.False(t, l.CheckLimit("b.two", 1, nil).Allowed)

	require.True(t, l.CheckAndRecord("a.one", 1, nil).Allowed)
	l.Reset("")
	assert.True(t, l.CheckLimit("a.one", 1, nil).Allowed)
	assert.True(t, l.CheckLimit("b.two", 1, nil).Allowed)
}

func TestCleanupReclaimsIdleState(t *testing.T) {
	l, clock := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 5, Window: time.Second, Algorithm: domain.SlidingWindow})

	require.True(t, l.CheckAndRecord("fetch.page", 1, nil).Allowed)

	// Still within the window: nothing to reclaim.
	assert.Equal(t, 0, l.Cleanup())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, l.Cleanup())

	// The rule itself survives cleanup.
	_, ok := l.GetLimit("fetch.page")
	assert.True(t, ok)
}

func TestCleanupSkipsOutstandingReservations(t *testing.T) {
	l, clock := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 5, Window: time.Second, Algorithm: domain.SlidingWindow})

	rsv := l.Reserve("fetch.page", 1, nil)
	require.True(t, rsv.Decision().Allowed)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, l.Cleanup())

	rsv.Commit()
	assert.Equal(t, 1, l.Cleanup())
}

func TestStatsTracksAdmissions(t *testing.T) {
	l, _ := newTestLimiter(t)
	configure(t, l, "fetch.page", domain.RateLimitRule{MaxOperations: 2, Window: time.Minute, Algorithm: domain.SlidingWindow})

	l.CheckAndRecord("fetch.page", 1, nil)
	l.CheckAndRecord("fetch.page", 1, nil)
	l.CheckAndRecord("fetch.page", 1, nil) // denied
	l.CheckAndRecord("other.op", 1, nil)   // unconfigured, allowed

	stats := l.Stats()
	assert.Equal(t, int64(4), stats.TotalChecked)
	assert.Equal(t, int64(3), stats.Allowed)
	assert.Equal(t, int64(1), stats.Denied)
	assert.InDelta(t, 0.75, stats.AllowRate, 1e-9)

	op := stats.PerOperation["fetch.page"]
	assert.Equal(t, int64(3), op.Checked)
	assert.Equal(t, int64(2), op.Allowed)
	assert.Equal(t, int64(1), op.Denied)
	assert.InDelta(t, 2.0/3.0, op.AllowRate, 1e-9)
}

func TestDecisionCarriesRuleAndState(t *testing.T) {
	l, _ := newTestLimiter(t)
	rule := domain.RateLimitRule{MaxOperations: 3, Window: time.Second, Algorithm: domain.FixedWindow}
	configure(t, l, "fetch.page", rule)

	d := l.CheckAndRecord("fetch.page", 1, nil)
	assert.Equal(t, rule, d.Rule)
	assert.Equal(t, domain.FixedWindow, d.State.Algorithm)
	assert.Equal(t, 3, d.Remaining) // remaining before this usage was recorded
}
