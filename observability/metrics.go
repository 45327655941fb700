// Package observability provides the metric instruments and trace spans
// emitted by the dispatcher, the producer and the inbound receiver.
package observability

import (
	"strconv"

	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for the hub, backed by any go-utils
// MetricFactory. All methods are safe to call on a nil *Metrics.
type Metrics struct {
	EventsPublishedTotal gu.Counter
	DeliveriesTotal      gu.Counter
	DeliveryLatency      gu.Histogram
	RetriesScheduled     gu.Counter
	TicksSkipped         gu.Counter
	EventsReleased       gu.Counter
	InboundTotal         gu.Counter
}

// NewMetrics creates hub metric instruments using the supplied factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsPublishedTotal: factory.Counter("hub_events_published_total"),
		DeliveriesTotal:      factory.Counter("hub_deliveries_total"),
		DeliveryLatency:      factory.Histogram("hub_delivery_latency_seconds"),
		RetriesScheduled:     factory.Counter("hub_delivery_retries_scheduled_total"),
		TicksSkipped:         factory.Counter("hub_dispatcher_ticks_skipped_total"),
		EventsReleased:       factory.Counter("hub_events_released_total"),
		InboundTotal:         factory.Counter("hub_inbound_events_total"),
	}
}

// RecordPublish counts one published event.
func (m *Metrics) RecordPublish() {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.Inc()
}

// RecordDelivery records a delivery attempt with the given status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordRetry counts one scheduled retry.
func (m *Metrics) RecordRetry(attempt int) {
	if m == nil {
		return
	}
	m.RetriesScheduled.WithLabels(map[string]string{"attempt": strconv.Itoa(attempt)}).Inc()
}

// RecordSkippedTick counts a tick dropped because the previous one was still running.
func (m *Metrics) RecordSkippedTick() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

// RecordReleased counts stale in-progress events returned to pending.
func (m *Metrics) RecordReleased(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsReleased.Add(float64(n))
}

// RecordInbound counts one verified inbound event.
func (m *Metrics) RecordInbound(eventType string, handled bool) {
	if m == nil {
		return
	}
	m.InboundTotal.WithLabels(map[string]string{
		"type":    eventType,
		"handled": strconv.FormatBool(handled),
	}).Inc()
}
