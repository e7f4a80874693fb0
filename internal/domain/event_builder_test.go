package domain

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.opentelemetry.io/otel/trace"
)

type mockEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (m *mockEmitter) Emit(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockEmitter) emitted() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Event, len(m.events))
	copy(result, m.events)
	return result
}

var allEventTypes = []EventType{
	EventRetryAttempt,
	EventRetryExhausted,
	EventRateLimitHit,
	EventLimitConfigured,
	EventLimitRemoved,
	EventLimitAdjusted,
	EventLimitReverted,
	EventExecutionDenied,
}

func TestEventBuilderPopulatesRequiredFields(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every built event carries id, type, service, timestamp", prop.ForAll(
		func(serviceName string, eventTypeIdx int) bool {
			eventType := allEventTypes[eventTypeIdx%len(allEventTypes)]
			builder := NewEventBuilder(&mockEmitter{}, serviceName, nil)

			event := builder.Build(eventType, map[string]any{"test": "value"})

			if _, err := uuid.Parse(event.ID); err != nil {
				t.Logf("ID is not a valid UUID: %s", event.ID)
				return false
			}
			if event.Timestamp.IsZero() {
				return false
			}
			return event.Type == eventType && event.ServiceName == serviceName
		},
		gen.AlphaString(),
		gen.IntRange(0, 100),
	))

	properties.Property("event ids are unique and time-ordered", prop.ForAll(
		func(n int) bool {
			builder := NewEventBuilder(&mockEmitter{}, "svc", nil)
			prev := ""
			for i := 0; i < n; i++ {
				event := builder.Build(EventRetryAttempt, nil)
				if event.ID <= prev {
					return false
				}
				prev = event.ID
			}
			return true
		},
		gen.IntRange(2, 50),
	))

	properties.TestingRun(t)
}

func TestEventBuilderNilSafety(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("emit with nil emitter does not panic", prop.ForAll(
		func(serviceName string) bool {
			builder := NewEventBuilder(nil, serviceName, nil)
			builder.Emit(EventRateLimitHit, map[string]any{"test": "value"})
			return true
		},
		gen.AlphaString(),
	))

	properties.Property("emit on nil builder does not panic", prop.ForAll(
		func(_ int) bool {
			var builder *EventBuilder
			builder.Emit(EventRateLimitHit, map[string]any{"test": "value"})
			builder.EmitWithContext(context.Background(), EventRetryAttempt, nil)
			return true
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}

func TestEventSerialization(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("json round trip preserves key fields", prop.ForAll(
		func(serviceName string) bool {
			builder := NewEventBuilder(&mockEmitter{}, serviceName, nil)
			original := builder.Build(EventRetryAttempt, map[string]any{"attempt": 1})

			data, err := json.Marshal(original)
			if err != nil {
				return false
			}

			var parsed map[string]any
			if err := json.Unmarshal(data, &parsed); err != nil {
				return false
			}
			for _, field := range []string{"id", "type", "service_name", "timestamp", "metadata"} {
				if _, ok := parsed[field]; !ok {
					t.Logf("missing field %s", field)
					return false
				}
			}

			var restored Event
			if err := json.Unmarshal(data, &restored); err != nil {
				return false
			}
			return restored.ID == original.ID &&
				restored.Type == original.Type &&
				restored.ServiceName == original.ServiceName
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestEventBuilderTraceContextPropagation(t *testing.T) {
	builder := NewEventBuilder(&mockEmitter{}, "execution-core", nil)

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	if err != nil {
		t.Fatal(err)
	}
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	if err != nil {
		t.Fatal(err)
	}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	event := builder.BuildWithContext(ctx, EventRateLimitHit, nil)

	if event.TraceID != traceID.String() {
		t.Errorf("TraceID mismatch: expected %s, got %s", traceID.String(), event.TraceID)
	}
	if event.SpanID != spanID.String() {
		t.Errorf("SpanID mismatch: expected %s, got %s", spanID.String(), event.SpanID)
	}
}

func TestEventBuilderEmitDelivers(t *testing.T) {
	emitter := &mockEmitter{}
	builder := NewEventBuilder(emitter, "execution-core", nil)

	builder.Emit(EventLimitConfigured, map[string]any{"pattern": "fetch.*"})

	events := emitter.emitted()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventLimitConfigured {
		t.Errorf("unexpected type %s", events[0].Type)
	}
}
