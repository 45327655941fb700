package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/internal/entity"
)

// agentModel is the JSON representation stored in Redis.
type agentModel struct {
	UUID              string     `json:"uuid"`
	Name              string     `json:"name"`
	CustomerID        string     `json:"customer_id,omitempty"`
	Status            string     `json:"status"`
	CurrentExecutions int        `json:"current_executions"`
	MaxExecutions     int        `json:"max_executions"`
	LastExecutionAt   *time.Time `json:"last_execution_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toAgentModel(a *agent.Agent) *agentModel {
	return &agentModel{
		UUID:              a.UUID,
		Name:              a.Name,
		CustomerID:        a.CustomerID,
		Status:            string(a.Status),
		CurrentExecutions: a.CurrentExecutions,
		MaxExecutions:     a.MaxExecutions,
		LastExecutionAt:   a.LastExecutionAt,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func fromAgentModel(m *agentModel) *agent.Agent {
	return &agent.Agent{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		UUID:              m.UUID,
		Name:              m.Name,
		CustomerID:        m.CustomerID,
		Status:            agent.Status(m.Status),
		CurrentExecutions: m.CurrentExecutions,
		MaxExecutions:     m.MaxExecutions,
		LastExecutionAt:   m.LastExecutionAt,
	}
}

func (s *Store) UpsertAgent(ctx context.Context, a *agent.Agent) error {
	m := toAgentModel(a)
	key := entityKey(prefixAgent, m.UUID)
	t := now()

	var existing agentModel
	switch err := s.getEntity(ctx, key, &existing); {
	case err == nil:
		m.CreatedAt = existing.CreatedAt
	case isNotFound(err):
		if m.CreatedAt.IsZero() {
			m.CreatedAt = t
		}
	default:
		return fmt.Errorf("hub/redis: upsert agent get: %w", err)
	}
	m.UpdatedAt = t

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hub/redis: upsert agent: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zAgentAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.UUID}).Err(); err != nil {
		return fmt.Errorf("hub/redis: upsert agent index: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, uuid string) (*agent.Agent, error) {
	var m agentModel
	if err := s.getEntity(ctx, entityKey(prefixAgent, uuid), &m); err != nil {
		if isNotFound(err) {
			return nil, agent.ErrNotFound
		}
		return nil, fmt.Errorf("hub/redis: get agent: %w", err)
	}
	return fromAgentModel(&m), nil
}

func (s *Store) ListAgents(ctx context.Context, opts agent.ListOpts) ([]*agent.Agent, int64, error) {
	uuids, err := s.revIDs(ctx, zAgentAll)
	if err != nil {
		return nil, 0, fmt.Errorf("hub/redis: list agents: %w", err)
	}

	result := make([]*agent.Agent, 0, len(uuids))
	for _, uuid := range uuids {
		var m agentModel
		if err := s.getEntity(ctx, entityKey(prefixAgent, uuid), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, 0, err
		}
		if opts.Status != "" && m.Status != string(opts.Status) {
			continue
		}
		if opts.CustomerID != "" && m.CustomerID != opts.CustomerID {
			continue
		}
		result = append(result, fromAgentModel(&m))
	}

	total := int64(len(result))
	return applyPagination(result, opts.Offset, opts.Limit), total, nil
}

func (s *Store) SetAgentStatus(ctx context.Context, uuid string, status agent.Status) error {
	key := entityKey(prefixAgent, uuid)

	var m agentModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return agent.ErrNotFound
		}
		return fmt.Errorf("hub/redis: set agent status get: %w", err)
	}

	m.Status = string(status)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("hub/redis: set agent status: %w", err)
	}
	return nil
}
