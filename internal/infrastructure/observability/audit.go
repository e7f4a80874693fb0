package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/automation-platform/execution-core/internal/application/services"
	"github.com/automation-platform/execution-core/internal/domain"
)

// AuditLogger records administrative actions as structured log entries,
// tagged with an event ID and the active trace.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an audit logger writing through the given logger.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With(slog.String("channel", "audit"))}
}

// Record writes one audit entry.
func (a *AuditLogger) Record(ctx context.Context, action string, details map[string]any) {
	attrs := []any{
		slog.String("audit_id", domain.GenerateEventID()),
		slog.String("action", action),
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		attrs = append(attrs, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	for k, v := range details {
		attrs = append(attrs, slog.Any(k, v))
	}

	a.logger.InfoContext(ctx, "audit", attrs...)
}

var _ services.AuditLog = (*AuditLogger)(nil)
