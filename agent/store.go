package agent

import "context"

// Store defines the persistence contract for agent aggregation rows.
type Store interface {
	// UpsertAgent creates or replaces the row keyed by UUID.
	UpsertAgent(ctx context.Context, a *Agent) error

	// GetAgent returns the row for uuid, or ErrNotFound.
	GetAgent(ctx context.Context, uuid string) (*Agent, error)

	// ListAgents returns a page of rows, newest first, and the total number
	// of rows matching the filters.
	ListAgents(ctx context.Context, opts ListOpts) ([]*Agent, int64, error)

	// SetAgentStatus overwrites the status column, or returns ErrNotFound.
	SetAgentStatus(ctx context.Context, uuid string, status Status) error
}
