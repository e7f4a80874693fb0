// Package application provides the fx module wiring application services.
package application

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/automation-platform/execution-core/internal/application/services"
	"github.com/automation-platform/execution-core/internal/pipeline"
	"github.com/automation-platform/execution-core/internal/ratelimit"
)

// Module provides application services for dependency injection.
var Module = fx.Module("application",
	fx.Provide(
		NewExecutionService,
		NewLimitsService,
		NewHealthService,
	),
)

// NewExecutionService creates an execution service with injected dependencies.
func NewExecutionService(
	executor *pipeline.Executor,
	metrics services.MetricsRecorder,
	logger *slog.Logger,
	tracer trace.Tracer,
) *services.ExecutionService {
	return services.NewExecutionService(executor, metrics, logger, tracer)
}

// NewLimitsService creates a limits service with injected dependencies.
func NewLimitsService(
	limiter *ratelimit.Limiter,
	repository services.RuleRepository,
	audit services.AuditLog,
	logger *slog.Logger,
	tracer trace.Tracer,
) *services.LimitsService {
	return services.NewLimitsService(limiter, repository, audit, logger, tracer)
}

// NewHealthService creates a health service with injected dependencies.
func NewHealthService(
	checkers []services.HealthChecker,
	logger *slog.Logger,
	tracer trace.Tracer,
) *services.HealthService {
	return services.NewHealthService(checkers, logger, tracer)
}
