package domain

import "time"

// EventType identifies a resilience event.
type EventType string

const (
	EventRetryAttempt    EventType = "retry_attempt"
	EventRetryExhausted  EventType = "retry_exhausted"
	EventRateLimitHit    EventType = "rate_limit_hit"
	EventLimitConfigured EventType = "limit_configured"
	EventLimitRemoved    EventType = "limit_removed"
	EventLimitAdjusted   EventType = "limit_adjusted"
	EventLimitReverted   EventType = "limit_reverted"
	EventExecutionDenied EventType = "execution_denied"
)

// Event is an observability record emitted by the core components.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	ServiceName string         `json:"service_name"`
	Timestamp   time.Time      `json:"timestamp"`
	TraceID     string         `json:"trace_id,omitempty"`
	SpanID      string         `json:"span_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EventEmitter receives resilience events.
type EventEmitter interface {
	Emit(event Event)
}

// EmitEvent safely emits an event, handling nil emitter.
func EmitEvent(emitter EventEmitter, event Event) {
	if emitter == nil {
		return
	}
	emitter.Emit(event)
}
