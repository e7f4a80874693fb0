package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/automation-platform/execution-core/internal/application/services"
)

// PrometheusMetrics records execution measurements as Prometheus metrics.
type PrometheusMetrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	denials    *prometheus.CounterVec
	retries    *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers the execution metrics on the
// given registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution_core",
			Name:      "executions_total",
			Help:      "Completed executions by operation and result.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "execution_core",
			Name:      "execution_duration_seconds",
			Help:      "Execution duration by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution_core",
			Name:      "rate_limit_denials_total",
			Help:      "Executions denied by the rate limiter.",
		}, []string{"operation"}),
		retries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "execution_core",
			Name:      "retry_attempts",
			Help:      "Extra attempts needed before an execution succeeded.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{"operation"}),
	}
	reg.MustRegister(m.executions, m.duration, m.denials, m.retries)
	return m
}

// RecordExecution records one completed execution.
func (m *PrometheusMetrics) RecordExecution(operation string, duration time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.executions.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDenial records one rate limit denial.
func (m *PrometheusMetrics) RecordDenial(operation string) {
	m.denials.WithLabelValues(operation).Inc()
}

// RecordRetry records the number of retries an execution needed.
func (m *PrometheusMetrics) RecordRetry(operation string, attempts int) {
	m.retries.WithLabelValues(operation).Observe(float64(attempts))
}

var _ services.MetricsRecorder = (*PrometheusMetrics)(nil)
