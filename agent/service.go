package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/arelis/hub/event"
)

// Publisher inserts events for the dispatcher to fan out.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]any) (*event.Event, error)
}

// Service provides agent operations.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates an agent service. A nil publisher disables event
// publication on status changes.
func NewService(store Store, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Get returns one agent.
func (svc *Service) Get(ctx context.Context, agentUUID string) (*Agent, error) {
	if err := validateKey(agentUUID); err != nil {
		return nil, err
	}
	return svc.store.GetAgent(ctx, agentUUID)
}

// List returns a page of agents and the total count.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Agent, int64, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, 0, invalidStatus(opts.Status)
	}
	return svc.store.ListAgents(ctx, opts)
}

// Metrics returns the execution summary of one agent.
func (svc *Service) Metrics(ctx context.Context, agentUUID string) (*Metrics, error) {
	a, err := svc.Get(ctx, agentUUID)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		CurrentExecutions: a.CurrentExecutions,
		MaxExecutions:     a.MaxExecutions,
		LastExecutionAt:   a.LastExecutionAt,
	}, nil
}

// Register creates or replaces an agent row. An agent without a key gets a
// random UUID.
func (svc *Service) Register(ctx context.Context, a *Agent) error {
	a.UUID = strings.TrimSpace(a.UUID)
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if !a.Status.Valid() {
		return invalidStatus(a.Status)
	}
	return svc.store.UpsertAgent(ctx, a)
}

// UpdateStatus changes an agent's status and publishes agent.status.changed
// with the previous and new values. A publish failure is returned to the
// caller; the status change itself is already stored at that point.
func (svc *Service) UpdateStatus(ctx context.Context, agentUUID string, status Status) (*Agent, error) {
	previous, a, err := svc.setStatus(ctx, agentUUID, status)
	if err != nil {
		return nil, err
	}

	if svc.publisher != nil {
		change := StatusChange{AgentUUID: agentUUID, PreviousStatus: previous, NewStatus: status}
		if _, err := svc.publisher.Publish(ctx, EventStatusChanged, change.Data()); err != nil {
			svc.logger.ErrorContext(ctx, "publish agent status change failed",
				"agent_uuid", agentUUID, "error", err)
			return a, fmt.Errorf("agent: publish status change: %w", err)
		}
	}
	return a, nil
}

// ApplyStatus changes an agent's status without publishing an event. It is
// the side effect of a status change reported by another process.
func (svc *Service) ApplyStatus(ctx context.Context, agentUUID string, status Status) (*Agent, error) {
	_, a, err := svc.setStatus(ctx, agentUUID, status)
	return a, err
}

func (svc *Service) setStatus(ctx context.Context, agentUUID string, status Status) (Status, *Agent, error) {
	if err := validateKey(agentUUID); err != nil {
		return "", nil, err
	}
	if !status.Valid() {
		return "", nil, invalidStatus(status)
	}

	a, err := svc.store.GetAgent(ctx, agentUUID)
	if err != nil {
		return "", nil, err
	}
	previous := a.Status

	if err := svc.store.SetAgentStatus(ctx, agentUUID, status); err != nil {
		return "", nil, err
	}
	a.Status = status
	a.Touch()

	svc.logger.InfoContext(ctx, "agent status updated",
		"agent_uuid", agentUUID, "previous_status", previous, "new_status", status)
	return previous, a, nil
}

// Data renders the change as event data.
func (c StatusChange) Data() map[string]any {
	return map[string]any{
		"agent_uuid":      c.AgentUUID,
		"previous_status": string(c.PreviousStatus),
		"new_status":      string(c.NewStatus),
	}
}

// validateKey accepts any non-blank agent key. Keys are opaque; agents
// registered elsewhere need not use UUIDs.
func validateKey(s string) error {
	if strings.TrimSpace(s) == "" {
		return goerrors.NewValidation("agent: missing agent key", goerrors.FieldError{
			Field:   "agent_uuid",
			Message: "is required",
		}).
			WithCode(http.StatusBadRequest).
			WithTextCode("validation_error")
	}
	return nil
}

func invalidStatus(s Status) error {
	return goerrors.NewValidation("agent: invalid status", goerrors.FieldError{
		Field:   "status",
		Message: fmt.Sprintf("%q is not one of active, paused, stopped", s),
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode("validation_error")
}
