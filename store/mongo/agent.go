package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arelis/hub/agent"
)

// UpsertAgent creates or replaces an agent row, keeping the original
// created_at.
func (s *Store) UpsertAgent(ctx context.Context, a *agent.Agent) error {
	m := toAgentModel(a)
	t := now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = t
	}

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.UUID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"name":               m.Name,
				"customer_id":        m.CustomerID,
				"status":             m.Status,
				"current_executions": m.CurrentExecutions,
				"max_executions":     m.MaxExecutions,
				"last_execution_at":  m.LastExecutionAt,
				"updated_at":         t,
			},
			"$setOnInsert": bson.M{
				"created_at": m.CreatedAt,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hub/mongo: upsert agent: %w", err)
	}

	return nil
}

// GetAgent returns an agent row by UUID.
func (s *Store) GetAgent(ctx context.Context, uuid string) (*agent.Agent, error) {
	var m agentModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": uuid}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, agent.ErrNotFound
		}

		return nil, fmt.Errorf("hub/mongo: get agent: %w", err)
	}

	return fromAgentModel(&m), nil
}

// ListAgents returns a filtered page of agents, newest first, and the total.
func (s *Store) ListAgents(ctx context.Context, opts agent.ListOpts) ([]*agent.Agent, int64, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.CustomerID != "" {
		filter["customer_id"] = opts.CustomerID
	}

	total, err := s.mdb.NewFind((*agentModel)(nil)).
		Filter(filter).
		Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("hub/mongo: count agents: %w", err)
	}

	var models []agentModel

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, 0, fmt.Errorf("hub/mongo: list agents: %w", err)
	}

	result := make([]*agent.Agent, 0, len(models))
	for i := range models {
		result = append(result, fromAgentModel(&models[i]))
	}

	return result, total, nil
}

// SetAgentStatus overwrites an agent's status.
func (s *Store) SetAgentStatus(ctx context.Context, uuid string, status agent.Status) error {
	res, err := s.mdb.NewUpdate((*agentModel)(nil)).
		Filter(bson.M{"_id": uuid}).
		Set("status", string(status)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hub/mongo: set agent status: %w", err)
	}

	if res.MatchedCount() == 0 {
		return agent.ErrNotFound
	}

	return nil
}
