// Package main is the entry point for the execution core server.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/automation-platform/execution-core/internal/application"
	"github.com/automation-platform/execution-core/internal/application/services"
	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/infrastructure/config"
	"github.com/automation-platform/execution-core/internal/infrastructure/observability"
	"github.com/automation-platform/execution-core/internal/infrastructure/repositories"
	"github.com/automation-platform/execution-core/internal/pipeline"
	"github.com/automation-platform/execution-core/internal/presentation/grpc"
	"github.com/automation-platform/execution-core/internal/ratelimit"
	"github.com/automation-platform/execution-core/internal/retry"
)

func main() {
	app := fx.New(
		// Configuration
		fx.Provide(config.Load),

		// Logging and observability
		fx.Provide(
			NewLogger,
			observability.GetTracer,
			NewRegistry,
			NewMetrics,
			NewEventBuilder,
		),

		// Core components
		fx.Provide(
			NewClock,
			NewLimiter,
			NewRetryHandler,
			NewPipelineExecutor,
		),

		// Infrastructure
		fx.Provide(
			NewRuleRepository,
			NewAuditLog,
			NewHealthCheckers,
		),

		// Application services
		application.Module,

		// Presentation layer
		fx.Provide(grpc.NewServer),

		// Lifecycle management
		fx.Invoke(grpc.RegisterWithFx),
		fx.Invoke(SetupObservability),
		fx.Invoke(LoadRules),
		fx.Invoke(StartCleanup),
	)

	app.Run()
}

// NewLogger creates the process logger from configuration.
func NewLogger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(&cfg.Logging)
}

// NewClock provides the system clock.
func NewClock() domain.Clock {
	return domain.SystemClock{}
}

// NewRegistry provides the Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// NewMetrics creates the execution metrics recorder.
func NewMetrics(reg *prometheus.Registry) services.MetricsRecorder {
	return observability.NewPrometheusMetrics(reg)
}

// NewEventBuilder creates the event builder over the log emitter.
func NewEventBuilder(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry, clock domain.Clock) *domain.EventBuilder {
	emitter := observability.NewLogEmitter(logger, reg)
	return domain.NewEventBuilder(emitter, cfg.OpenTelemetry.ServiceName, clock)
}

// NewLimiter creates the rate limiter.
func NewLimiter(clock domain.Clock, logger *slog.Logger, events *domain.EventBuilder) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		Clock:        clock,
		Logger:       logger,
		EventBuilder: events,
	})
}

// NewRetryHandler creates the retry handler.
func NewRetryHandler(clock domain.Clock, logger *slog.Logger, events *domain.EventBuilder) *retry.Handler {
	return retry.New(retry.Config{
		Clock:        clock,
		Logger:       logger,
		EventBuilder: events,
	})
}

// NewPipelineExecutor creates the execution pipeline.
func NewPipelineExecutor(limiter *ratelimit.Limiter, retries *retry.Handler, clock domain.Clock, logger *slog.Logger, events *domain.EventBuilder) *pipeline.Executor {
	return pipeline.NewExecutor(pipeline.Config{
		Limiter:      limiter,
		Retries:      retries,
		Clock:        clock,
		Logger:       logger,
		EventBuilder: events,
	})
}

// NewRuleRepository creates the rule store: Redis when enabled, in-memory
// otherwise.
func NewRuleRepository(cfg *config.Config, logger *slog.Logger) (services.RuleRepository, error) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, using in-memory rule store")
		return repositories.NewMemoryRuleRepository(), nil
	}
	return repositories.NewRedisRuleRepository(&cfg.Redis, logger)
}

// NewAuditLog creates the audit log.
func NewAuditLog(logger *slog.Logger) services.AuditLog {
	return observability.NewAuditLogger(logger)
}

// NewHealthCheckers assembles the component health checkers.
func NewHealthCheckers(repo services.RuleRepository) []services.HealthChecker {
	var checkers []services.HealthChecker
	if redisRepo, ok := repo.(*repositories.RedisRuleRepository); ok {
		checkers = append(checkers, redisChecker{repo: redisRepo})
	}
	return checkers
}

// redisChecker reports Redis connectivity.
type redisChecker struct {
	repo *repositories.RedisRuleRepository
}

func (c redisChecker) Name() string { return "redis" }

func (c redisChecker) Check(ctx context.Context) services.HealthStatus {
	if err := c.repo.Ping(ctx); err != nil {
		return services.HealthStatus{State: services.HealthUnhealthy, Message: err.Error()}
	}
	return services.HealthStatus{State: services.HealthHealthy}
}

// SetupObservability configures OpenTelemetry on startup.
func SetupObservability(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) {
	var cleanup func()
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			cleanup, err = observability.Setup(ctx, &cfg.OpenTelemetry, logger)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if cleanup != nil {
				cleanup()
			}
			return nil
		},
	})
}

// LoadRules applies persisted and file-based rate limit rules at startup.
func LoadRules(lc fx.Lifecycle, cfg *config.Config, limits *services.LimitsService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := limits.LoadPersisted(ctx); err != nil {
				return err
			}
			if cfg.Limits.RulesPath != "" {
				return limits.LoadFromFile(ctx, cfg.Limits.RulesPath)
			}
			return nil
		},
	})
}

// StartCleanup periodically reclaims idle rate limiter state.
func StartCleanup(lc fx.Lifecycle, cfg *config.Config, limiter *ratelimit.Limiter) {
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(cfg.Limits.CleanupInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						limiter.Cleanup()
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})
}
