package hub

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/broadcast"
	"github.com/arelis/hub/dispatcher"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
	"github.com/arelis/hub/observability"
	"github.com/arelis/hub/store"
	"github.com/arelis/hub/webhook"
)

// Hub is the root webhook dispatcher.
type Hub struct {
	config      Config
	store       store.Store
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	broadcaster broadcast.Publisher
	httpClient  *http.Client

	webhookSvc *webhook.Service
	agentSvc   *agent.Service
	dispatcher *dispatcher.Dispatcher
}

// compile-time check: the agent service publishes through the Hub.
var _ agent.Publisher = (*Hub)(nil)

// New creates a new Hub with the given options.
func New(opts ...Option) (*Hub, error) {
	h := &Hub{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.store == nil {
		return nil, ErrNoStore
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.broadcaster == nil {
		h.broadcaster = broadcast.NoopPublisher{}
	}
	h.wireServices()
	return h, nil
}

// wireServices initializes the internal services after options have been applied.
func (h *Hub) wireServices() {
	h.webhookSvc = webhook.NewService(h.store, h.logger)
	h.agentSvc = agent.NewService(h.store, h, h.logger)

	h.dispatcher = dispatcher.New(h.store, dispatcher.Config{
		Interval:       h.config.PollInterval,
		BatchSize:      h.config.BatchSize,
		Concurrency:    h.config.Concurrency,
		RequestTimeout: h.config.RequestTimeout,
		MaxAttempts:    h.config.MaxAttempts,
		BackoffBase:    h.config.BackoffBase,
		BackoffMax:     h.config.BackoffMax,
		LeaseTimeout:   h.config.LeaseTimeout,
		HTTPClient:     h.httpClient,
		Metrics:        h.metrics,
		Tracer:         h.tracer,
	}, h.logger)
}

// Start begins the dispatcher loop.
func (h *Hub) Start(ctx context.Context) {
	h.dispatcher.Start(ctx)
}

// Stop shuts the dispatcher down, waiting at most ShutdownTimeout for
// in-flight deliveries.
func (h *Hub) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		h.dispatcher.Stop(ctx)
		close(done)
	}()

	timeout := h.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	select {
	case <-done:
	case <-time.After(timeout):
		h.logger.WarnContext(ctx, "dispatcher shutdown timed out", "timeout", timeout)
	}
}

// Tick runs a single dispatch cycle. It returns dispatcher.ErrTickInProgress
// when the loop is already mid-tick.
func (h *Hub) Tick(ctx context.Context) (dispatcher.Stats, error) {
	return h.dispatcher.Tick(ctx)
}

// Publish records a pending event of the given type. The dispatcher picks it
// up on its next tick.
//
// An empty type is a validation error. A failed insert is returned wrapped
// in ErrStore and nothing is dispatched. The optional broadcast mirror runs
// after the insert and its failures are only logged.
func (h *Hub) Publish(ctx context.Context, eventType string, data map[string]any) (*event.Event, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, ValidationError("hub: invalid event", "type", "event type is required")
	}
	if data == nil {
		data = map[string]any{}
	}

	evt := &event.Event{
		Entity: entity.New(),
		ID:     id.NewEventID(),
		Type:   eventType,
		Data:   data,
		Status: event.StatusPending,
	}

	if err := h.store.CreateEvent(ctx, evt); err != nil {
		h.logger.ErrorContext(ctx, "persist event failed", "type", eventType, "error", err)
		return nil, StoreError(err, "hub: persist event")
	}

	h.metrics.RecordPublish()

	if err := h.broadcaster.Publish(ctx, evt); err != nil {
		h.logger.WarnContext(ctx, "broadcast event failed",
			"event_id", evt.ID, "type", evt.Type, "error", err)
	}

	h.logger.DebugContext(ctx, "event published", "event_id", evt.ID, "type", evt.Type)
	return evt, nil
}

// Webhooks returns the subscription registry service.
func (h *Hub) Webhooks() *webhook.Service {
	return h.webhookSvc
}

// Agents returns the agent service. Status updates made through it publish
// agent.status.changed via this Hub.
func (h *Hub) Agents() *agent.Service {
	return h.agentSvc
}

// Dispatcher returns the dispatcher loop.
func (h *Hub) Dispatcher() *dispatcher.Dispatcher {
	return h.dispatcher
}

// Store returns the underlying store.
func (h *Hub) Store() store.Store {
	return h.store
}

// Logger returns the configured logger.
func (h *Hub) Logger() *slog.Logger {
	return h.logger
}

// Metrics returns the configured metrics, possibly nil.
func (h *Hub) Metrics() *observability.Metrics {
	return h.metrics
}
