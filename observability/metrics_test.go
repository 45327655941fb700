package observability

import (
	"context"
	"testing"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	m.RecordPublish()
	m.RecordDelivery("delivered", 0.5)
	m.RecordRetry(2)
	m.RecordSkippedTick()
	m.RecordReleased(3)
	m.RecordInbound("agent.status.changed", true)
}

func TestTracerWithGlobalProvider(t *testing.T) {
	tr := NewTracer()

	ctx, eventSpan := tr.StartEventSpan(context.Background(), "evt_1", "agent.status.changed")
	if eventSpan == nil {
		t.Fatal("expected event span")
	}

	_, span := tr.StartDeliverySpan(ctx, "evt_1", "whk_1", 1)
	if span == nil {
		t.Fatal("expected delivery span")
	}
	tr.EndDeliverySpan(span, 500, 12, "http 500")
	eventSpan.End()
}
