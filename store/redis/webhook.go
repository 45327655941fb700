package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
	"github.com/arelis/hub/webhook"
)

// webhookModel is the JSON representation stored in Redis.
type webhookModel struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Events      []string  `json:"events"`
	Secret      string    `json:"secret"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:          wh.ID.String(),
		URL:         wh.URL,
		Events:      wh.Events,
		Secret:      wh.Secret,
		Description: wh.Description,
		CreatedAt:   wh.CreatedAt,
		UpdatedAt:   wh.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	return &webhook.Webhook{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          whID,
		URL:         m.URL,
		Events:      m.Events,
		Secret:      m.Secret,
		Description: m.Description,
	}, nil
}

func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)
	if err := s.setEntity(ctx, entityKey(prefixWebhook, m.ID), m); err != nil {
		return fmt.Errorf("hub/redis: create webhook: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zWebhookAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	for _, eventType := range m.Events {
		pipe.SAdd(ctx, sWebhookType+eventType, m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hub/redis: create webhook indexes: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	var m webhookModel
	if err := s.getEntity(ctx, entityKey(prefixWebhook, whID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, webhook.ErrNotFound
		}
		return nil, fmt.Errorf("hub/redis: get webhook: %w", err)
	}
	return fromWebhookModel(&m)
}

func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	key := entityKey(prefixWebhook, whID.String())

	var m webhookModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return webhook.ErrNotFound
		}
		return fmt.Errorf("hub/redis: delete webhook get: %w", err)
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("hub/redis: delete webhook: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, zWebhookAll, m.ID)
	for _, eventType := range m.Events {
		pipe.SRem(ctx, sWebhookType+eventType, m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hub/redis: delete webhook indexes: %w", err)
	}
	return nil
}

func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	ids, err := s.revIDs(ctx, zWebhookAll)
	if err != nil {
		return nil, fmt.Errorf("hub/redis: list webhooks: %w", err)
	}

	result, err := s.loadWebhooks(ctx, ids)
	if err != nil {
		return nil, err
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListSubscribers(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	ids, err := s.rdb.SMembers(ctx, sWebhookType+eventType).Result()
	if err != nil {
		return nil, fmt.Errorf("hub/redis: list subscribers: %w", err)
	}

	result, err := s.loadWebhooks(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Sets are unordered.
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) loadWebhooks(ctx context.Context, ids []string) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, 0, len(ids))
	for _, whID := range ids {
		var m webhookModel
		if err := s.getEntity(ctx, entityKey(prefixWebhook, whID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		wh, err := fromWebhookModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, wh)
	}
	return result, nil
}
