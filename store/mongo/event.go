package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
)

// CreateEvent persists an event.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m, err := toEventModel(evt)
	if err != nil {
		return err
	}

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("hub/mongo: create event: %w", err)
	}

	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": evtID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, event.ErrNotFound
		}

		return nil, fmt.Errorf("hub/mongo: get event: %w", err)
	}

	return fromEventModel(&m)
}

// ListEvents returns events, newest first, optionally filtered by type or status.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel

	filter := bson.M{}
	if opts.Type != "" {
		filter["type"] = opts.Type
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
		return nil, fmt.Errorf("hub/mongo: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(models))

	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, evt)
	}

	return result, nil
}

// ClaimPending claims pending events one at a time with FindOneAndUpdate so
// two dispatchers never receive the same event.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]*event.Event, error) {
	var result []*event.Event
	col := s.mdb.Collection(colEvents)

	for limit <= 0 || len(result) < limit {
		t := now()
		filter := bson.M{"status": string(event.StatusPending)}
		update := bson.M{
			"$set": bson.M{
				"status":     string(event.StatusInProgress),
				"claimed_at": t,
				"updated_at": t,
			},
		}

		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

		var m eventModel

		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err != nil {
			if errors.Is(err, mongod.ErrNoDocuments) {
				break
			}

			return nil, fmt.Errorf("hub/mongo: claim pending: %w", err)
		}

		evt, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}

		result = append(result, evt)
	}

	return result, nil
}

// CompleteEvent moves an in-progress event to a terminal status.
func (s *Store) CompleteEvent(ctx context.Context, evtID id.ID, status event.Status, errMsg string) error {
	if !status.Terminal() {
		return event.ErrInvalidTransition
	}

	t := now()
	res, err := s.mdb.NewUpdate((*eventModel)(nil)).
		Filter(bson.M{"_id": evtID.String(), "status": string(event.StatusInProgress)}).
		Set("status", string(status)).
		Set("error", errMsg).
		Set("processed_at", t).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hub/mongo: complete event: %w", err)
	}

	if res.MatchedCount() > 0 {
		return nil
	}

	if _, err := s.GetEvent(ctx, evtID); err != nil {
		return err
	}

	return event.ErrInvalidTransition
}

// ReleaseStale returns in-progress events claimed before the cutoff to pending.
func (s *Store) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := s.mdb.Collection(colEvents).UpdateMany(ctx,
		bson.M{
			"status":     string(event.StatusInProgress),
			"claimed_at": bson.M{"$lt": claimedBefore},
		},
		bson.M{
			"$set":   bson.M{"status": string(event.StatusPending), "updated_at": now()},
			"$unset": bson.M{"claimed_at": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("hub/mongo: release stale: %w", err)
	}

	return res.ModifiedCount, nil
}

// CountByStatus returns the number of events in the given status.
func (s *Store) CountByStatus(ctx context.Context, status event.Status) (int64, error) {
	count, err := s.mdb.NewFind((*eventModel)(nil)).
		Filter(bson.M{"status": string(status)}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hub/mongo: count events: %w", err)
	}

	return count, nil
}
