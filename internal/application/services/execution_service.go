// Package services provides application services that orchestrate the
// execution pipeline and rate limit rule management.
package services

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/automation-platform/execution-core/internal/classify"
	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/outcome"
	"github.com/automation-platform/execution-core/internal/pipeline"
)

// MetricsRecorder records execution measurements for monitoring.
type MetricsRecorder interface {
	RecordExecution(operation string, duration time.Duration, success bool)
	RecordDenial(operation string)
	RecordRetry(operation string, attempts int)
}

// ExecutionService runs operations through the execution pipeline with
// tracing and metrics around each call.
type ExecutionService struct {
	executor *pipeline.Executor
	metrics  MetricsRecorder
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewExecutionService creates an execution service.
func NewExecutionService(
	executor *pipeline.Executor,
	metrics MetricsRecorder,
	logger *slog.Logger,
	tracer trace.Tracer,
) *ExecutionService {
	return &ExecutionService{
		executor: executor,
		metrics:  metrics,
		logger:   logger,
		tracer:   tracer,
	}
}

// Execute runs an operation through the pipeline and returns its outcome.
func (s *ExecutionService) Execute(ctx context.Context, req pipeline.Request, work func(context.Context) (any, error)) outcome.Outcome[any] {
	ctx, span := s.tracer.Start(ctx, "execution.execute")
	defer span.End()

	start := time.Now()

	s.logger.InfoContext(ctx, "executing operation",
		slog.String("operation", req.OperationID),
		slog.Int("weight", req.Weight))

	res := pipeline.Execute(ctx, s.executor, req, work)

	duration := time.Since(start)
	s.metrics.RecordExecution(req.OperationID, duration, res.IsSuccess())

	if res.IsFailure() {
		if res.Code().IsRateLimited() {
			s.metrics.RecordDenial(req.OperationID)
		}
		s.logger.ErrorContext(ctx, "operation failed",
			slog.String("operation", req.OperationID),
			slog.Int("code", int(res.Code())),
			slog.Duration("duration", duration),
			slog.Any("error", res.Err()))
		span.RecordError(res.Err())
		return res
	}

	if diag := res.Context(); diag != nil {
		if attempts, ok := diag.Metadata["retryAttempts"].(int); ok && attempts > 0 {
			s.metrics.RecordRetry(req.OperationID, attempts)
		}
	}

	s.logger.InfoContext(ctx, "operation completed",
		slog.String("operation", req.OperationID),
		slog.Duration("duration", duration))

	return res
}

// ClassifyError returns the classification verdict for an error observed
// while performing the named operation.
func (s *ExecutionService) ClassifyError(ctx context.Context, err error, operation string) domain.Classification {
	_, span := s.tracer.Start(ctx, "execution.classify")
	defer span.End()

	cls := classify.ClassifyError(err, operation)

	s.logger.DebugContext(ctx, "error classified",
		slog.String("operation", operation),
		slog.String("category", string(cls.Category)),
		slog.Bool("retryable", cls.Retryable))

	return cls
}
