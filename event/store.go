package event

import (
	"context"
	"time"

	"github.com/arelis/hub/id"
)

// Store defines the persistence contract for events.
//
// Claim, Complete and Release are the only operations that change Status.
// Implementations must refuse to move an event out of a terminal status.
type Store interface {
	// CreateEvent persists a new pending event.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// ListEvents returns events, newest first, optionally filtered.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	// ClaimPending atomically moves up to limit pending events to in_progress,
	// oldest first, and returns them. Concurrent callers never receive the
	// same event.
	ClaimPending(ctx context.Context, limit int) ([]*Event, error)

	// CompleteEvent moves an in-progress event to processed or failed.
	CompleteEvent(ctx context.Context, evtID id.ID, status Status, errMsg string) error

	// ReleaseStale returns in-progress events claimed before the cutoff to
	// pending and reports how many were released.
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)

	// CountByStatus returns the number of events in the given status.
	CountByStatus(ctx context.Context, status Status) (int64, error)
}
