// Package webhook holds the subscription registry: which URLs want which
// event types, and the secret each delivery is signed with.
package webhook

import (
	"errors"
	"slices"

	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
)

// ErrNotFound is returned by stores when a webhook does not exist.
var ErrNotFound = errors.New("hub: webhook not found")

// MinSecretLength is the shortest signing secret accepted on create.
const MinSecretLength = 32

// Webhook is a subscriber endpoint registered for a set of event types.
type Webhook struct {
	entity.Entity

	ID id.ID `json:"id"`

	// URL receives the signed POST for every matching event.
	URL string `json:"url"`

	// Events lists the exact event types this subscription wants.
	Events []string `json:"events"`

	// Secret is the HMAC key. Never serialized.
	Secret string `json:"-"`

	Description string `json:"description,omitempty"`
}

// Subscribes reports whether the webhook wants events of the given type.
func (w *Webhook) Subscribes(eventType string) bool {
	return slices.Contains(w.Events, eventType)
}

// ListOpts configures pagination for webhook listing.
type ListOpts struct {
	Offset int
	Limit  int
}
