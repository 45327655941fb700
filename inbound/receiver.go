// Package inbound verifies signed webhook payloads sent to the hub by other
// processes and applies their side effects.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"

	"github.com/arelis/hub"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/observability"
	"github.com/arelis/hub/signature"
	"github.com/arelis/hub/webhook"
)

// WebhookLookup resolves the webhook whose secret signs an inbound payload.
type WebhookLookup interface {
	GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error)
}

// Event is a verified inbound payload.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Created   string         `json:"created"`
	Data      map[string]any `json:"data"`
	WebhookID id.ID          `json:"-"`
}

// HandleFunc applies the side effect of one inbound event.
type HandleFunc func(ctx context.Context, evt *Event) error

// Handler binds an event type to its side effect. Schema, when set, is a
// JSON Schema document that Data must satisfy before Handle runs.
type Handler struct {
	Type   string
	Schema any
	Handle HandleFunc
}

// Result reports what the receiver did with an accepted payload.
type Result struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
	Handled bool   `json:"handled"`
}

// Receiver verifies inbound payloads and dispatches them by type.
type Receiver struct {
	webhooks  WebhookLookup
	validator *Validator
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu       sync.RWMutex
	handlers map[string]Handler
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithLogger sets the receiver's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Receiver) { r.logger = logger }
}

// WithMetrics counts received events.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Receiver) { r.metrics = m }
}

// WithHandler registers h at construction. It panics on an invalid schema.
func WithHandler(h Handler) Option {
	return func(r *Receiver) {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// NewReceiver creates a receiver with no handlers.
func NewReceiver(webhooks WebhookLookup, opts ...Option) *Receiver {
	r := &Receiver{
		webhooks:  webhooks,
		validator: NewValidator(),
		logger:    slog.Default(),
		handlers:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Register adds or replaces the handler for h.Type. The schema is compiled
// up front so a broken document fails here rather than on first use.
func (r *Receiver) Register(h Handler) error {
	if strings.TrimSpace(h.Type) == "" || h.Handle == nil {
		return errors.New("inbound: handler needs a type and a handle func")
	}
	if h.Schema != nil {
		if _, err := r.validator.compile(h.Schema); err != nil {
			return fmt.Errorf("inbound: handler %s: %w", h.Type, err)
		}
	}

	r.mu.Lock()
	r.handlers[h.Type] = h
	r.mu.Unlock()
	return nil
}

// Receive verifies body against the secret of webhook webhookID and runs the
// handler registered for its type.
//
// Checks run in order: signature present, webhook exists, signature valid,
// body well formed, data matches the handler schema. No side effect happens
// unless every check passes.
func (r *Receiver) Receive(ctx context.Context, webhookID, sig string, body []byte) (*Result, error) {
	if strings.TrimSpace(sig) == "" {
		return nil, goerrors.New("inbound: missing webhook signature", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(hub.CodeMissingSignature)
	}

	whID, err := id.ParseWebhookID(webhookID)
	if err != nil {
		return nil, hub.NotFoundError(webhook.ErrNotFound, "inbound: webhook not found")
	}
	wh, err := r.webhooks.GetWebhook(ctx, whID)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			return nil, hub.NotFoundError(err, "inbound: webhook not found")
		}
		return nil, hub.StoreError(err, "inbound: load webhook")
	}

	if !signature.Verify(body, sig, wh.Secret) {
		r.logger.WarnContext(ctx, "inbound signature rejected", "webhook_id", wh.ID)
		return nil, hub.AuthError("inbound: invalid webhook signature")
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, hub.ValidationError("inbound: invalid payload", "body", "must be a JSON object")
	}
	evt.Type = strings.TrimSpace(evt.Type)
	if evt.Type == "" {
		return nil, hub.ValidationError("inbound: invalid payload", "type", "event type is required")
	}
	if evt.Data == nil {
		evt.Data = map[string]any{}
	}
	evt.WebhookID = wh.ID

	res := &Result{EventID: evt.ID, Type: evt.Type}

	r.mu.RLock()
	h, ok := r.handlers[evt.Type]
	r.mu.RUnlock()

	if !ok {
		r.metrics.RecordInbound(evt.Type, false)
		r.logger.WarnContext(ctx, "inbound event type unhandled",
			"webhook_id", wh.ID, "event_id", evt.ID, "type", evt.Type)
		return res, nil
	}

	fields, err := r.validator.Validate(h.Schema, evt.Data)
	if err != nil {
		return nil, fmt.Errorf("inbound: validate %s: %w", evt.Type, err)
	}
	if len(fields) > 0 {
		return nil, goerrors.NewValidation("inbound: invalid event data", fields...).
			WithCode(http.StatusBadRequest).
			WithTextCode(hub.CodeValidation)
	}

	if err := h.Handle(ctx, &evt); err != nil {
		r.logger.ErrorContext(ctx, "inbound handler failed",
			"webhook_id", wh.ID, "event_id", evt.ID, "type", evt.Type, "error", err)
		return nil, err
	}

	res.Handled = true
	r.metrics.RecordInbound(evt.Type, true)
	r.logger.InfoContext(ctx, "inbound event applied",
		"webhook_id", wh.ID, "event_id", evt.ID, "type", evt.Type)
	return res, nil
}
