package ratelimit

import (
	"sync"
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
)

// statsCollector accumulates admission counters. It maintains its own lock
// so hot-path recording never contends with the limiter's entry mutexes.
type statsCollector struct {
	mu      sync.Mutex
	started time.Time

	totalChecked int64
	allowed      int64
	denied       int64
	peak         int

	perOp map[string]*opCounters
}

type opCounters struct {
	checked int64
	allowed int64
	denied  int64
	peak    int
}

func newStatsCollector(started time.Time) *statsCollector {
	return &statsCollector{
		started: started,
		perOp:   make(map[string]*opCounters),
	}
}

func (s *statsCollector) record(operation string, allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalChecked++
	op := s.counters(operation)
	op.checked++
	if allowed {
		s.allowed++
		op.allowed++
	} else {
		s.denied++
		op.denied++
	}
}

// updatePeak tracks the high-water mark of concurrently outstanding
// reservations, globally and per operation.
func (s *statsCollector) updatePeak(operation string, outstanding int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outstanding > s.peak {
		s.peak = outstanding
	}
	op := s.counters(operation)
	if outstanding > op.peak {
		op.peak = outstanding
	}
}

func (s *statsCollector) counters(operation string) *opCounters {
	op, ok := s.perOp[operation]
	if !ok {
		op = &opCounters{}
		s.perOp[operation] = op
	}
	return op
}

func (s *statsCollector) snapshot(now time.Time, memKB float64) domain.RateLimitStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.RateLimitStats{
		TotalChecked:   s.totalChecked,
		Allowed:        s.allowed,
		Denied:         s.denied,
		PeakOperations: s.peak,
		PerOperation:   make(map[string]domain.OperationStats, len(s.perOp)),
		MemoryUsageKB:  memKB,
	}
	if s.totalChecked > 0 {
		stats.AllowRate = float64(s.allowed) / float64(s.totalChecked)
	}
	if elapsed := now.Sub(s.started).Seconds(); elapsed > 0 {
		stats.OperationsPerSecond = float64(s.totalChecked) / elapsed
	}
	for name, op := range s.perOp {
		out := domain.OperationStats{
			Checked: op.checked,
			Allowed: op.allowed,
			Denied:  op.denied,
			Peak:    op.peak,
		}
		if op.checked > 0 {
			out.AllowRate = float64(op.allowed) / float64(op.checked)
		}
		stats.PerOperation[name] = out
	}
	return stats
}
