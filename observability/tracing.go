package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/arelis/hub"

// Tracer provides OpenTelemetry tracing for the hub.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer backed by the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartEventSpan starts the span covering one event's fan-out.
func (t *Tracer) StartEventSpan(ctx context.Context, eventID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "hub.dispatch",
		trace.WithAttributes(
			attribute.String("hub.event_id", eventID),
			attribute.String("hub.event_type", eventType),
		),
	)
}

// StartDeliverySpan starts a span for one delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, eventID, webhookID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "hub.delivery",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("hub.event_id", eventID),
			attribute.String("hub.webhook_id", webhookID),
			attribute.Int("hub.attempt", attempt),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode int, latencyMs int64, errMsg string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int64("hub.latency_ms", latencyMs),
	)
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}
