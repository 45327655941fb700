package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
)

// eventModel is the JSON representation stored in Redis.
type eventModel struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Data        map[string]any `json:"data"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	status := evt.Status
	if status == "" {
		status = event.StatusPending
	}
	return &eventModel{
		ID:          evt.ID.String(),
		Type:        evt.Type,
		Data:        evt.Data,
		Status:      string(status),
		Error:       evt.Error,
		ClaimedAt:   evt.ClaimedAt,
		ProcessedAt: evt.ProcessedAt,
		CreatedAt:   evt.CreatedAt,
		UpdatedAt:   evt.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          evtID,
		Type:        m.Type,
		Data:        m.Data,
		Status:      event.Status(m.Status),
		Error:       m.Error,
		ClaimedAt:   m.ClaimedAt,
		ProcessedAt: m.ProcessedAt,
	}, nil
}

// claimScript moves up to ARGV[2] pending IDs (all when <= 0) to the claimed set.
// KEYS[1] = pending zset, KEYS[2] = claimed zset
// KEYS[3] = pending status set, KEYS[4] = in_progress status set
// ARGV[1] = claim score
var claimScript = goredis.NewScript(`
local stop = tonumber(ARGV[2]) - 1
if tonumber(ARGV[2]) <= 0 then stop = -1 end
local ids = redis.call('ZRANGE', KEYS[1], 0, stop)
for _, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('ZADD', KEYS[2], ARGV[1], id)
    redis.call('SMOVE', KEYS[3], KEYS[4], id)
end
return ids
`)

// completeScript finishes a claim. Returns 0 when the event was not claimed.
// KEYS[1] = claimed zset, KEYS[2] = in_progress status set, KEYS[3] = target status set
// ARGV[1] = event ID
var completeScript = goredis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[1])
return 1
`)

// releaseScript returns claims older than ARGV[1] to the pending set,
// restoring their created_at score.
// KEYS[1] = claimed zset, KEYS[2] = pending zset, KEYS[3] = all-events zset
// KEYS[4] = in_progress status set, KEYS[5] = pending status set
var releaseScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    local created = redis.call('ZSCORE', KEYS[3], id) or ARGV[1]
    redis.call('ZADD', KEYS[2], created, id)
    redis.call('SMOVE', KEYS[4], KEYS[5], id)
end
return ids
`)

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)
	key := entityKey(prefixEvent, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hub/redis: create event: %w", err)
	}

	score := scoreFromTime(m.CreatedAt)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zEventAll, goredis.Z{Score: score, Member: m.ID})
	switch event.Status(m.Status) {
	case event.StatusPending:
		pipe.ZAdd(ctx, zEventPending, goredis.Z{Score: score, Member: m.ID})
	case event.StatusInProgress:
		claimed := m.CreatedAt
		if m.ClaimedAt != nil {
			claimed = *m.ClaimedAt
		}
		pipe.ZAdd(ctx, zEventClaimed, goredis.Z{Score: scoreFromTime(claimed), Member: m.ID})
	}
	pipe.SAdd(ctx, statusSetKey(m.Status), m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hub/redis: create event indexes: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, event.ErrNotFound
		}
		return nil, fmt.Errorf("hub/redis: get event: %w", err)
	}
	return fromEventModel(&m)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	ids, err := s.revIDs(ctx, zEventAll)
	if err != nil {
		return nil, fmt.Errorf("hub/redis: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(ids))
	for _, evtID := range ids {
		var m eventModel
		if err := s.getEntity(ctx, entityKey(prefixEvent, evtID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.Type != "" && m.Type != opts.Type {
			continue
		}
		if opts.Status != "" && m.Status != string(opts.Status) {
			continue
		}
		evt, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ClaimPending(ctx context.Context, limit int) ([]*event.Event, error) {
	t := now()
	ids, err := claimScript.Run(ctx, s.rdb,
		[]string{
			zEventPending,
			zEventClaimed,
			statusSetKey(string(event.StatusPending)),
			statusSetKey(string(event.StatusInProgress)),
		},
		scoreArg(scoreFromTime(t)), limit,
	).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("hub/redis: claim script: %w", err)
	}

	events := make([]*event.Event, 0, len(ids))
	for _, evtID := range ids {
		key := entityKey(prefixEvent, evtID)
		var m eventModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("hub/redis: claim get: %w", err)
		}

		m.Status = string(event.StatusInProgress)
		m.ClaimedAt = &t
		m.UpdatedAt = t
		if err := s.setEntity(ctx, key, &m); err != nil {
			return nil, fmt.Errorf("hub/redis: claim update: %w", err)
		}

		evt, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}

	return events, nil
}

func (s *Store) CompleteEvent(ctx context.Context, evtID id.ID, status event.Status, errMsg string) error {
	key := entityKey(prefixEvent, evtID.String())

	var m eventModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return event.ErrNotFound
		}
		return fmt.Errorf("hub/redis: complete event get: %w", err)
	}
	if !status.Terminal() {
		return event.ErrInvalidTransition
	}

	ok, err := completeScript.Run(ctx, s.rdb,
		[]string{
			zEventClaimed,
			statusSetKey(string(event.StatusInProgress)),
			statusSetKey(string(status)),
		},
		m.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("hub/redis: complete script: %w", err)
	}
	if ok == 0 {
		return event.ErrInvalidTransition
	}

	t := now()
	m.Status = string(status)
	m.Error = errMsg
	m.ProcessedAt = &t
	m.UpdatedAt = t
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("hub/redis: complete event: %w", err)
	}
	return nil
}

func (s *Store) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	ids, err := releaseScript.Run(ctx, s.rdb,
		[]string{
			zEventClaimed,
			zEventPending,
			zEventAll,
			statusSetKey(string(event.StatusInProgress)),
			statusSetKey(string(event.StatusPending)),
		},
		scoreArg(scoreFromTime(claimedBefore)),
	).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("hub/redis: release script: %w", err)
	}

	t := now()
	for _, evtID := range ids {
		key := entityKey(prefixEvent, evtID)
		var m eventModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return 0, fmt.Errorf("hub/redis: release get: %w", err)
		}
		m.Status = string(event.StatusPending)
		m.ClaimedAt = nil
		m.UpdatedAt = t
		if err := s.setEntity(ctx, key, &m); err != nil {
			return 0, fmt.Errorf("hub/redis: release update: %w", err)
		}
	}

	return int64(len(ids)), nil
}

func (s *Store) CountByStatus(ctx context.Context, status event.Status) (int64, error) {
	count, err := s.rdb.SCard(ctx, statusSetKey(string(status))).Result()
	if err != nil {
		return 0, fmt.Errorf("hub/redis: count events: %w", err)
	}
	return count, nil
}
