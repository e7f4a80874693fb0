package services

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// HealthState is the coarse health of a component.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// HealthStatus describes the health of one component or of the service as a
// whole.
type HealthStatus struct {
	State   HealthState
	Message string
	Details map[string]any
}

// HealthChecker reports the health of one component.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) HealthStatus
}

// HealthService aggregates health status from registered components.
type HealthService struct {
	mu       sync.RWMutex
	checkers []HealthChecker

	logger *slog.Logger
	tracer trace.Tracer
}

// NewHealthService creates a health service.
func NewHealthService(checkers []HealthChecker, logger *slog.Logger, tracer trace.Tracer) *HealthService {
	return &HealthService{
		checkers: checkers,
		logger:   logger,
		tracer:   tracer,
	}
}

// AddChecker registers a component checker.
func (s *HealthService) AddChecker(checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

// Check runs all component checks concurrently and aggregates the result.
// Any unhealthy component makes the whole service unhealthy; otherwise any
// degraded component makes it degraded.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	ctx, span := s.tracer.Start(ctx, "health.check")
	defer span.End()

	s.mu.RLock()
	checkers := make([]HealthChecker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.RUnlock()

	if len(checkers) == 0 {
		return HealthStatus{State: HealthHealthy, Message: "no components registered"}
	}

	type result struct {
		name   string
		status HealthStatus
	}
	results := make(chan result, len(checkers))

	var wg sync.WaitGroup
	for _, checker := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			results <- result{name: c.Name(), status: c.Check(ctx)}
		}(checker)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	overall := HealthHealthy
	details := make(map[string]any, len(checkers))
	unhealthy := 0

	for res := range results {
		details[res.name] = map[string]any{
			"state":   string(res.status.State),
			"message": res.status.Message,
		}
		switch res.status.State {
		case HealthUnhealthy:
			overall = HealthUnhealthy
			unhealthy++
		case HealthDegraded:
			if overall == HealthHealthy {
				overall = HealthDegraded
			}
		}
	}

	s.logger.DebugContext(ctx, "health check completed",
		slog.String("state", string(overall)),
		slog.Int("components", len(checkers)),
		slog.Int("unhealthy", unhealthy))

	message := "all components healthy"
	if overall != HealthHealthy {
		message = "one or more components impaired"
	}
	return HealthStatus{State: overall, Message: message, Details: details}
}
