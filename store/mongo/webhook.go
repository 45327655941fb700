package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/arelis/hub/id"
	"github.com/arelis/hub/webhook"
)

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	if _, err := s.mdb.NewInsert(toWebhookModel(wh)).Exec(ctx); err != nil {
		return fmt.Errorf("hub/mongo: create webhook: %w", err)
	}

	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	var m webhookModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": whID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, webhook.ErrNotFound
		}

		return nil, fmt.Errorf("hub/mongo: get webhook: %w", err)
	}

	return fromWebhookModel(&m)
}

// DeleteWebhook removes a webhook.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	res, err := s.mdb.NewDelete((*webhookModel)(nil)).
		Filter(bson.M{"_id": whID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hub/mongo: delete webhook: %w", err)
	}

	if res.DeletedCount() == 0 {
		return webhook.ErrNotFound
	}

	return nil
}

// ListWebhooks returns webhooks, newest first.
func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hub/mongo: list webhooks: %w", err)
	}

	return fromWebhookModels(models)
}

// ListSubscribers returns the webhooks subscribed to eventType. Matching an
// array field against a scalar is an exact element match in MongoDB.
func (s *Store) ListSubscribers(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	var models []webhookModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"events": eventType}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("hub/mongo: list subscribers: %w", err)
	}

	return fromWebhookModels(models)
}

func fromWebhookModels(models []webhookModel) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, 0, len(models))

	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, wh)
	}

	return result, nil
}
