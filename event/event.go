package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
)

var (
	// ErrNotFound is returned by stores when an event does not exist.
	ErrNotFound = errors.New("hub: event not found")

	// ErrInvalidTransition is returned when a status change would leave a
	// terminal status or skip the claim step.
	ErrInvalidTransition = errors.New("hub: invalid event status transition")
)

// Status is the processing state of an event.
type Status string

const (
	// StatusPending marks an event that no dispatcher has claimed yet.
	StatusPending Status = "pending"

	// StatusInProgress marks an event claimed by a dispatcher tick.
	StatusInProgress Status = "in_progress"

	// StatusProcessed marks an event whose subscriber deliveries were all attempted.
	StatusProcessed Status = "processed"

	// StatusFailed marks an event whose subscribers could not be resolved.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Event is a domain occurrence awaiting fan-out to subscribers.
type Event struct {
	entity.Entity

	// ID is the TypeID of the event ("evt_...").
	ID id.ID `json:"id"`

	// Type is the dot-namespaced event type (e.g. "agent.status.changed").
	Type string `json:"type"`

	// Data is the arbitrary JSON payload.
	Data map[string]any `json:"data"`

	Status Status `json:"status"`

	// Error holds the reason an event ended up failed.
	Error string `json:"error,omitempty"`

	// ClaimedAt is set while the event is in progress.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	// ProcessedAt is set when the event reaches a terminal status.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// CreatedLayout renders Payload.Created as ISO-8601 with millisecond precision.
const CreatedLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the wire format POSTed to subscribers.
type Payload struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Created string         `json:"created"`
	Data    map[string]any `json:"data"`
}

// Payload returns the subscriber-facing view of the event.
func (e *Event) Payload() Payload {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return Payload{
		ID:      e.ID.String(),
		Type:    e.Type,
		Created: e.CreatedAt.UTC().Format(CreatedLayout),
		Data:    data,
	}
}

// Body serializes the wire payload. Map keys are emitted in sorted order, so
// the same event always yields the same bytes.
func (e *Event) Body() ([]byte, error) {
	return json.Marshal(e.Payload())
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	Status Status
}
