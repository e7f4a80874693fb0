package domain

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// EventBuilder constructs resilience events with automatic field population.
type EventBuilder struct {
	emitter     EventEmitter
	serviceName string
	clock       Clock
}

// NewEventBuilder creates a new EventBuilder. A nil clock falls back to the
// system clock.
func NewEventBuilder(emitter EventEmitter, serviceName string, clock Clock) *EventBuilder {
	if clock == nil {
		clock = SystemClock{}
	}
	return &EventBuilder{
		emitter:     emitter,
		serviceName: serviceName,
		clock:       clock,
	}
}

// Build creates an Event with automatic ID, Timestamp, and Type.
func (b *EventBuilder) Build(eventType EventType, metadata map[string]any) Event {
	return Event{
		ID:          GenerateEventID(),
		Type:        eventType,
		ServiceName: b.serviceName,
		Timestamp:   b.now(),
		Metadata:    metadata,
	}
}

// BuildWithContext creates an Event with trace context propagation.
func (b *EventBuilder) BuildWithContext(ctx context.Context, eventType EventType, metadata map[string]any) Event {
	event := b.Build(eventType, metadata)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		event.TraceID = spanCtx.TraceID().String()
		event.SpanID = spanCtx.SpanID().String()
	}

	return event
}

// Emit builds and emits an event. Safe to call with nil builder or emitter.
func (b *EventBuilder) Emit(eventType EventType, metadata map[string]any) {
	if b == nil || b.emitter == nil {
		return
	}
	b.emitter.Emit(b.Build(eventType, metadata))
}

// EmitWithContext builds and emits an event with trace context. Safe to call
// with nil builder or emitter.
func (b *EventBuilder) EmitWithContext(ctx context.Context, eventType EventType, metadata map[string]any) {
	if b == nil || b.emitter == nil {
		return
	}
	b.emitter.Emit(b.BuildWithContext(ctx, eventType, metadata))
}

func (b *EventBuilder) now() time.Time {
	if b == nil || b.clock == nil {
		return time.Now()
	}
	return b.clock.Now()
}
