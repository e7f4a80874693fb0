package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
)

// FakeClock is a deterministic domain.Clock for tests. Sleep returns
// immediately after advancing the clock by the requested duration, and
// AfterFunc callbacks fire when Advance (or a Sleep) moves the clock past
// their deadline.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

// NewFakeClock returns a FakeClock starting at a fixed reference instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	due := c.collectDueLocked()
	c.mu.Unlock()
	fire(due)
	return nil
}

func (c *FakeClock) AfterFunc(d time.Duration, fn func()) domain.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires every timer whose deadline has
// been reached, in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := c.collectDueLocked()
	c.mu.Unlock()
	fire(due)
}

// SleepDurations returns the durations passed to Sleep so far.
func (c *FakeClock) SleepDurations() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

func (c *FakeClock) collectDueLocked() []*fakeTimer {
	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due
}

func fire(timers []*fakeTimer) {
	for _, t := range timers {
		t.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
