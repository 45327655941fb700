// Package broadcast mirrors published events to a message bus so other
// processes can observe them without polling the event store.
package broadcast

import (
	"context"

	"github.com/arelis/hub/event"
)

// SubjectPrefix is prepended to the event type to form the bus subject.
const SubjectPrefix = "hub.events."

// Subject returns the subject an event of the given type is published on.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

// Publisher mirrors events to a bus.
type Publisher interface {
	Publish(ctx context.Context, evt *event.Event) error
	Close() error
}

// NoopPublisher is a Publisher that does nothing (used when no bus is configured).
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *event.Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
