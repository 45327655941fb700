// Package api provides the admin HTTP API of the hub: webhook registration,
// event publishing, delivery-status queries, agent status and the inbound
// receiver endpoint.
//
// Routes are relative; hubd mounts the handler under /v1.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/arelis/hub"
	"github.com/arelis/hub/inbound"
	"github.com/arelis/hub/ratelimit"
)

// maxBodyBytes bounds every request body the API reads.
const maxBodyBytes = 1 << 20

// Handler is the root HTTP handler for the hub admin API.
type Handler struct {
	hub      *hub.Hub
	receiver *inbound.Receiver
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewHandler creates a new admin API handler. A nil receiver gets one that
// applies agent.status.changed to the hub's agent rows. A nil limiter
// disables rate limiting.
func NewHandler(
	h *hub.Hub,
	receiver *inbound.Receiver,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = h.Logger()
	}
	if receiver == nil {
		receiver = DefaultReceiver(h, logger)
	}

	a := &Handler{
		hub:      h,
		receiver: receiver,
		limiter:  limiter,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	a.registerRoutes()
	return a
}

// DefaultReceiver builds the inbound receiver hubd serves: it verifies
// payloads against the hub's webhooks and applies agent status changes.
func DefaultReceiver(h *hub.Hub, logger *slog.Logger) *inbound.Receiver {
	return inbound.NewReceiver(h.Store(),
		inbound.WithLogger(logger),
		inbound.WithMetrics(h.Metrics()),
		inbound.WithHandler(inbound.AgentStatusHandler(h.Agents(), logger)),
	)
}

func (a *Handler) registerRoutes() {
	// Webhooks
	a.mux.HandleFunc("POST /webhooks", a.createWebhook)
	a.mux.HandleFunc("GET /webhooks", a.listWebhooks)
	a.mux.HandleFunc("GET /webhooks/{id}", a.getWebhook)
	a.mux.HandleFunc("DELETE /webhooks/{id}", a.deleteWebhook)

	// Inbound
	a.mux.HandleFunc("POST /webhooks/receive/{id}", a.receive)

	// Events
	a.mux.HandleFunc("POST /events", a.createEvent)
	a.mux.HandleFunc("GET /events", a.listEvents)
	a.mux.HandleFunc("GET /events/{id}", a.getEvent)

	// Deliveries
	a.mux.HandleFunc("GET /webhooks/{id}/deliveries", a.listWebhookDeliveries)
	a.mux.HandleFunc("GET /events/{id}/deliveries", a.listEventDeliveries)

	// Agents
	a.mux.HandleFunc("GET /agents", a.listAgents)
	a.mux.HandleFunc("GET /agents/{uuid}", a.getAgent)
	a.mux.HandleFunc("PATCH /agents/{uuid}/status", a.updateAgentStatus)
	a.mux.HandleFunc("GET /agents/{uuid}/metrics", a.getAgentMetrics)

	// Stats
	a.mux.HandleFunc("GET /stats", a.getStats)
}

// ServeHTTP implements http.Handler.
func (a *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.withMiddleware(a.mux).ServeHTTP(w, r)
}

func (a *Handler) withMiddleware(next http.Handler) http.Handler {
	return a.requestID(a.panicRecovery(a.logging(a.rateLimit(next))))
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return hub.ValidationError("api: invalid request body", "body", "must be a JSON object")
	}
	return nil
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a non-negative query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
