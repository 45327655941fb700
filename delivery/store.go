package delivery

import (
	"context"
	"time"

	"github.com/arelis/hub/id"
)

// Store defines the persistence contract for delivery records and the
// retry queue.
type Store interface {
	// CreateRecord appends a delivery record.
	CreateRecord(ctx context.Context, rec *Record) error

	// ListRecords returns records, newest first, filtered by webhook, event
	// or status.
	ListRecords(ctx context.Context, opts ListOpts) ([]*Record, error)

	// EnqueueRetry schedules a follow-up attempt.
	EnqueueRetry(ctx context.Context, r *Retry) error

	// ClaimDueRetries leases up to limit entries with DueAt <= now whose
	// lease is absent or expired. Concurrent callers never receive the same
	// entry while its lease holds.
	ClaimDueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Retry, error)

	// DeleteRetry removes an entry once its attempt has run.
	DeleteRetry(ctx context.Context, retryID id.ID) error

	// CountRetries returns the number of queued entries.
	CountRetries(ctx context.Context) (int64, error)
}
