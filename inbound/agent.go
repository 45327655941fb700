package inbound

import (
	"context"
	"errors"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"

	"github.com/arelis/hub"
	"github.com/arelis/hub/agent"
)

// StatusApplier writes an agent's status without publishing a new event.
type StatusApplier interface {
	ApplyStatus(ctx context.Context, agentUUID string, status agent.Status) (*agent.Agent, error)
}

// AgentStatusSchema constrains the data of agent.status.changed.
var AgentStatusSchema = map[string]any{
	"type":     "object",
	"required": []any{"agent_uuid", "new_status"},
	"properties": map[string]any{
		"agent_uuid":      map[string]any{"type": "string", "minLength": 1},
		"previous_status": map[string]any{"type": "string"},
		"new_status": map[string]any{
			"type": "string",
			"enum": []any{string(agent.StatusActive), string(agent.StatusPaused), string(agent.StatusStopped)},
		},
	},
}

// AgentStatusHandler sets the agent row's status to data.new_status. A
// change for an agent this hub does not know is logged and ignored.
func AgentStatusHandler(agents StatusApplier, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return Handler{
		Type:   agent.EventStatusChanged,
		Schema: AgentStatusSchema,
		Handle: func(ctx context.Context, evt *Event) error {
			agentUUID, _ := evt.Data["agent_uuid"].(string)
			status, _ := evt.Data["new_status"].(string)

			_, err := agents.ApplyStatus(ctx, agentUUID, agent.Status(status))
			switch {
			case err == nil:
				return nil
			case errors.Is(err, agent.ErrNotFound):
				logger.WarnContext(ctx, "inbound status change for unknown agent",
					"event_id", evt.ID, "webhook_id", evt.WebhookID, "agent_uuid", agentUUID)
				return nil
			case isRich(err):
				return err
			default:
				return hub.StoreError(err, "inbound: update agent status")
			}
		},
	}
}

func isRich(err error) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich)
}
