package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
)

// Service provides webhook management operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new webhook service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create validates the input and registers a new webhook. Nothing is written
// when validation fails.
func (svc *Service) Create(ctx context.Context, in Input) (*Webhook, error) {
	events, err := Validate(in)
	if err != nil {
		return nil, err
	}

	wh := &Webhook{
		Entity:      entity.New(),
		ID:          id.NewWebhookID(),
		URL:         strings.TrimSpace(in.URL),
		Events:      events,
		Secret:      in.Secret,
		Description: in.Description,
	}

	if err := svc.store.CreateWebhook(ctx, wh); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "webhook created", "webhook_id", wh.ID, "events", wh.Events)
	return wh, nil
}

// Get returns a webhook by ID.
func (svc *Service) Get(ctx context.Context, whID id.ID) (*Webhook, error) {
	return svc.store.GetWebhook(ctx, whID)
}

// Delete removes a webhook. Delivery records already written are kept.
func (svc *Service) Delete(ctx context.Context, whID id.ID) error {
	if err := svc.store.DeleteWebhook(ctx, whID); err != nil {
		return err
	}
	svc.logger.InfoContext(ctx, "webhook deleted", "webhook_id", whID)
	return nil
}

// List returns webhooks, newest first.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Webhook, error) {
	return svc.store.ListWebhooks(ctx, opts)
}

// Subscribers resolves the webhooks subscribed to eventType.
func (svc *Service) Subscribers(ctx context.Context, eventType string) ([]*Webhook, error) {
	return svc.store.ListSubscribers(ctx, eventType)
}

// Validate checks a creation payload and returns the de-duplicated event
// list. Every problem is reported, not only the first.
func Validate(in Input) ([]string, error) {
	var fields []goerrors.FieldError

	if msg := checkURL(in.URL); msg != "" {
		fields = append(fields, goerrors.FieldError{Field: "url", Message: msg})
	}

	events := make([]string, 0, len(in.Events))
	seen := make(map[string]struct{}, len(in.Events))
	for _, e := range in.Events {
		e = strings.TrimSpace(e)
		if e == "" {
			fields = append(fields, goerrors.FieldError{Field: "events", Message: "event types must not be blank"})
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		events = append(events, e)
	}
	if len(in.Events) == 0 {
		fields = append(fields, goerrors.FieldError{Field: "events", Message: "at least one event type is required"})
	}

	if len(in.Secret) < MinSecretLength {
		fields = append(fields, goerrors.FieldError{Field: "secret", Message: "must be at least 32 characters"})
	}

	if len(fields) > 0 {
		return nil, goerrors.NewValidation("webhook: invalid input", fields...).
			WithCode(http.StatusBadRequest).
			WithTextCode("validation_error")
	}
	return events, nil
}

func checkURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "url is required"
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return "must be a valid absolute URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "scheme must be http or https"
	}
	return ""
}
