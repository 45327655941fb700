// Package delivery records the outcome of every attempt to notify a
// subscriber and queues the attempts still owed after a retryable failure.
package delivery

import (
	"errors"
	"time"

	"github.com/arelis/hub/id"
)

// ErrRetryNotFound is returned by stores when a retry entry does not exist.
var ErrRetryNotFound = errors.New("hub: delivery retry not found")

// Status is the outcome of one delivery attempt.
type Status string

const (
	// StatusDelivered means the subscriber answered 2xx.
	StatusDelivered Status = "delivered"

	// StatusFailed means the subscriber answered non-2xx, timed out or was unreachable.
	StatusFailed Status = "failed"
)

// Record is one attempted notification of one webhook for one event.
// Records are append-only: stores never update or delete them.
type Record struct {
	ID        id.ID  `json:"id"`
	WebhookID id.ID  `json:"webhook_id"`
	EventID   id.ID  `json:"event_id"`
	Status    Status `json:"status"`

	// Error describes why the attempt failed. Empty when delivered.
	Error string `json:"error,omitempty"`

	// Attempt is 1 for the first try and grows with every retry.
	Attempt int `json:"attempt"`

	// StatusCode is the HTTP status returned, or 0 when no response arrived.
	StatusCode int `json:"status_code,omitempty"`

	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Retry is a queued follow-up attempt for a (webhook, event) pair.
type Retry struct {
	ID        id.ID `json:"id"`
	WebhookID id.ID `json:"webhook_id"`
	EventID   id.ID `json:"event_id"`

	// Attempt is the attempt number this entry will perform.
	Attempt int `json:"attempt"`

	// DueAt is the earliest time the attempt may run.
	DueAt time.Time `json:"due_at"`

	// LockedUntil is the claim lease. A claimed entry whose lease has passed
	// becomes claimable again.
	LockedUntil *time.Time `json:"locked_until,omitempty"`

	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOpts configures filtering and pagination for record listing.
type ListOpts struct {
	Offset    int
	Limit     int
	WebhookID id.ID
	EventID   id.ID
	Status    Status
}
