package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/automation-platform/execution-core/internal/domain"
)

// LogEmitter implements domain.EventEmitter by writing events to the
// structured log and counting them per type in Prometheus.
type LogEmitter struct {
	logger  *slog.Logger
	counter *prometheus.CounterVec
}

// NewLogEmitter creates an event emitter registered on the given registerer.
func NewLogEmitter(logger *slog.Logger, reg prometheus.Registerer) *LogEmitter {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "execution_core",
		Name:      "events_total",
		Help:      "Resilience events emitted by type.",
	}, []string{"type"})
	reg.MustRegister(counter)
	return &LogEmitter{logger: logger, counter: counter}
}

// Emit records one event.
func (e *LogEmitter) Emit(event domain.Event) {
	e.counter.WithLabelValues(string(event.Type)).Inc()

	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("service_name", event.ServiceName),
		slog.Time("event_time", event.Timestamp),
	}
	if event.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", event.TraceID))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}

	e.logger.LogAttrs(context.Background(), slog.LevelInfo, "event emitted", attrs...)
}

var _ domain.EventEmitter = (*LogEmitter)(nil)
