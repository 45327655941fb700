package webhook

import (
	"context"

	"github.com/arelis/hub/id"
)

// Store defines the persistence contract for webhook subscriptions.
type Store interface {
	// CreateWebhook persists a new webhook.
	CreateWebhook(ctx context.Context, wh *Webhook) error

	// GetWebhook returns a webhook by ID, or ErrNotFound.
	GetWebhook(ctx context.Context, whID id.ID) (*Webhook, error)

	// DeleteWebhook removes a webhook, or returns ErrNotFound.
	DeleteWebhook(ctx context.Context, whID id.ID) error

	// ListWebhooks returns webhooks, newest first.
	ListWebhooks(ctx context.Context, opts ListOpts) ([]*Webhook, error)

	// ListSubscribers returns every webhook whose Events contains eventType
	// exactly. This is the dispatcher's hot path.
	ListSubscribers(ctx context.Context, eventType string) ([]*Webhook, error)
}
