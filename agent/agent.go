// Package agent manages the agent aggregation rows the console reads and
// the inbound receiver updates.
package agent

import (
	"errors"
	"time"

	"github.com/arelis/hub/internal/entity"
)

// ErrNotFound is returned by stores when an agent row does not exist.
var ErrNotFound = errors.New("hub: agent not found")

// EventStatusChanged is published whenever an agent's status changes.
const EventStatusChanged = "agent.status.changed"

// Status is the run state of an agent.
type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusStopped:
		return true
	}
	return false
}

// Agent is the aggregation row for one messaging agent.
type Agent struct {
	entity.Entity

	// UUID identifies the agent across systems.
	UUID string `json:"uuid"`

	Name       string `json:"name"`
	CustomerID string `json:"customer_id,omitempty"`
	Status     Status `json:"status"`

	CurrentExecutions int        `json:"current_executions"`
	MaxExecutions     int        `json:"max_executions"`
	LastExecutionAt   *time.Time `json:"last_execution_at,omitempty"`
}

// Metrics is the execution summary of an agent.
type Metrics struct {
	CurrentExecutions int        `json:"current_executions"`
	MaxExecutions     int        `json:"max_executions"`
	LastExecutionAt   *time.Time `json:"last_execution_at,omitempty"`
}

// StatusChange is the data of an agent.status.changed event.
type StatusChange struct {
	AgentUUID      string `json:"agent_uuid"`
	PreviousStatus Status `json:"previous_status,omitempty"`
	NewStatus      Status `json:"new_status"`
}

// ListOpts configures filtering and pagination for agent listing.
type ListOpts struct {
	Offset     int
	Limit      int
	Status     Status
	CustomerID string
}
