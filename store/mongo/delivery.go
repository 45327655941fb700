package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/id"
)

// CreateRecord appends a delivery record.
func (s *Store) CreateRecord(ctx context.Context, rec *delivery.Record) error {
	if _, err := s.mdb.NewInsert(toRecordModel(rec)).Exec(ctx); err != nil {
		return fmt.Errorf("hub/mongo: create record: %w", err)
	}

	return nil
}

// ListRecords returns delivery records, newest first.
func (s *Store) ListRecords(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Record, error) {
	var models []recordModel

	filter := bson.M{}
	if !opts.WebhookID.IsNil() {
		filter["webhook_id"] = opts.WebhookID.String()
	}
	if !opts.EventID.IsNil() {
		filter["event_id"] = opts.EventID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

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
		return nil, fmt.Errorf("hub/mongo: list records: %w", err)
	}

	result := make([]*delivery.Record, 0, len(models))

	for i := range models {
		rec, err := fromRecordModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, rec)
	}

	return result, nil
}

// EnqueueRetry schedules a follow-up attempt.
func (s *Store) EnqueueRetry(ctx context.Context, r *delivery.Retry) error {
	if _, err := s.mdb.NewInsert(toRetryModel(r)).Exec(ctx); err != nil {
		return fmt.Errorf("hub/mongo: enqueue retry: %w", err)
	}

	return nil
}

// ClaimDueRetries leases due entries one at a time with FindOneAndUpdate.
func (s *Store) ClaimDueRetries(ctx context.Context, at time.Time, lease time.Duration, limit int) ([]*delivery.Retry, error) {
	var result []*delivery.Retry
	col := s.mdb.Collection(colRetries)
	lockedUntil := at.Add(lease)

	for limit <= 0 || len(result) < limit {
		filter := bson.M{
			"due_at": bson.M{"$lte": at},
			"$or": bson.A{
				bson.M{"locked_until": nil},
				bson.M{"locked_until": bson.M{"$lte": at}},
			},
		}

		update := bson.M{"$set": bson.M{"locked_until": lockedUntil}}

		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(bson.D{{Key: "due_at", Value: 1}})

		var m retryModel

		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err != nil {
			if errors.Is(err, mongod.ErrNoDocuments) {
				break
			}

			return nil, fmt.Errorf("hub/mongo: claim retries: %w", err)
		}

		r, err := fromRetryModel(&m)
		if err != nil {
			return nil, err
		}

		result = append(result, r)
	}

	return result, nil
}

// DeleteRetry removes a retry entry.
func (s *Store) DeleteRetry(ctx context.Context, retryID id.ID) error {
	res, err := s.mdb.NewDelete((*retryModel)(nil)).
		Filter(bson.M{"_id": retryID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hub/mongo: delete retry: %w", err)
	}

	if res.DeletedCount() == 0 {
		return delivery.ErrRetryNotFound
	}

	return nil
}

// CountRetries returns the number of queued retries.
func (s *Store) CountRetries(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*retryModel)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hub/mongo: count retries: %w", err)
	}

	return count, nil
}
