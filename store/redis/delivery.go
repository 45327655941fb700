package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/id"
)

// recordModel is the JSON representation stored in Redis.
type recordModel struct {
	ID         string    `json:"id"`
	WebhookID  string    `json:"webhook_id"`
	EventID    string    `json:"event_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func toRecordModel(rec *delivery.Record) *recordModel {
	return &recordModel{
		ID:         rec.ID.String(),
		WebhookID:  rec.WebhookID.String(),
		EventID:    rec.EventID.String(),
		Status:     string(rec.Status),
		Error:      rec.Error,
		Attempt:    rec.Attempt,
		StatusCode: rec.StatusCode,
		LatencyMs:  rec.LatencyMs,
		CreatedAt:  rec.CreatedAt,
	}
}

func fromRecordModel(m *recordModel) (*delivery.Record, error) {
	recID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	return &delivery.Record{
		ID:         recID,
		WebhookID:  whID,
		EventID:    evtID,
		Status:     delivery.Status(m.Status),
		Error:      m.Error,
		Attempt:    m.Attempt,
		StatusCode: m.StatusCode,
		LatencyMs:  m.LatencyMs,
		CreatedAt:  m.CreatedAt,
	}, nil
}

// retryModel is the JSON representation stored in Redis.
type retryModel struct {
	ID          string     `json:"id"`
	WebhookID   string     `json:"webhook_id"`
	EventID     string     `json:"event_id"`
	Attempt     int        `json:"attempt"`
	DueAt       time.Time  `json:"due_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toRetryModel(r *delivery.Retry) *retryModel {
	return &retryModel{
		ID:          r.ID.String(),
		WebhookID:   r.WebhookID.String(),
		EventID:     r.EventID.String(),
		Attempt:     r.Attempt,
		DueAt:       r.DueAt,
		LockedUntil: r.LockedUntil,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt,
	}
}

func fromRetryModel(m *retryModel) (*delivery.Retry, error) {
	rtyID, err := id.ParseRetryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse retry ID %q: %w", m.ID, err)
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	return &delivery.Retry{
		ID:          rtyID,
		WebhookID:   whID,
		EventID:     evtID,
		Attempt:     m.Attempt,
		DueAt:       m.DueAt,
		LockedUntil: m.LockedUntil,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// leaseScript leases due retry IDs whose previous lease is absent or expired.
// KEYS[1] = due zset, KEYS[2] = lease zset
// ARGV[1] = now score, ARGV[2] = lease-until score, ARGV[3] = limit (<= 0 for all)
var leaseScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local limit = tonumber(ARGV[3])
local claimed = {}
for _, id in ipairs(due) do
    if limit > 0 and #claimed >= limit then break end
    local lease = redis.call('ZSCORE', KEYS[2], id)
    if not lease or tonumber(lease) <= tonumber(ARGV[1]) then
        redis.call('ZADD', KEYS[2], ARGV[2], id)
        table.insert(claimed, id)
    end
end
return claimed
`)

func (s *Store) CreateRecord(ctx context.Context, rec *delivery.Record) error {
	m := toRecordModel(rec)
	if err := s.setEntity(ctx, entityKey(prefixRecord, m.ID), m); err != nil {
		return fmt.Errorf("hub/redis: create record: %w", err)
	}

	score := scoreFromTime(m.CreatedAt)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zRecordAll, goredis.Z{Score: score, Member: m.ID})
	pipe.ZAdd(ctx, zRecordWebhook+m.WebhookID, goredis.Z{Score: score, Member: m.ID})
	pipe.ZAdd(ctx, zRecordEvent+m.EventID, goredis.Z{Score: score, Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hub/redis: create record indexes: %w", err)
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Record, error) {
	index := zRecordAll
	switch {
	case !opts.WebhookID.IsNil():
		index = zRecordWebhook + opts.WebhookID.String()
	case !opts.EventID.IsNil():
		index = zRecordEvent + opts.EventID.String()
	}

	ids, err := s.revIDs(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("hub/redis: list records: %w", err)
	}

	result := make([]*delivery.Record, 0, len(ids))
	for _, recID := range ids {
		var m recordModel
		if err := s.getEntity(ctx, entityKey(prefixRecord, recID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if !opts.EventID.IsNil() && m.EventID != opts.EventID.String() {
			continue
		}
		if opts.Status != "" && m.Status != string(opts.Status) {
			continue
		}
		rec, err := fromRecordModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) EnqueueRetry(ctx context.Context, r *delivery.Retry) error {
	m := toRetryModel(r)
	if err := s.setEntity(ctx, entityKey(prefixRetry, m.ID), m); err != nil {
		return fmt.Errorf("hub/redis: enqueue retry: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zRetryDue, goredis.Z{Score: scoreFromTime(m.DueAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("hub/redis: enqueue retry index: %w", err)
	}
	return nil
}

func (s *Store) ClaimDueRetries(ctx context.Context, at time.Time, lease time.Duration, limit int) ([]*delivery.Retry, error) {
	lockedUntil := at.Add(lease).UTC()
	ids, err := leaseScript.Run(ctx, s.rdb,
		[]string{zRetryDue, zRetryLease},
		scoreArg(scoreFromTime(at)), scoreArg(scoreFromTime(lockedUntil)), limit,
	).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("hub/redis: lease script: %w", err)
	}

	retries := make([]*delivery.Retry, 0, len(ids))
	for _, rtyID := range ids {
		key := entityKey(prefixRetry, rtyID)
		var m retryModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("hub/redis: claim retry get: %w", err)
		}

		m.LockedUntil = &lockedUntil
		if err := s.setEntity(ctx, key, &m); err != nil {
			return nil, fmt.Errorf("hub/redis: claim retry update: %w", err)
		}

		r, err := fromRetryModel(&m)
		if err != nil {
			return nil, err
		}
		retries = append(retries, r)
	}

	return retries, nil
}

func (s *Store) DeleteRetry(ctx context.Context, retryID id.ID) error {
	key := entityKey(prefixRetry, retryID.String())

	var m retryModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return delivery.ErrRetryNotFound
		}
		return fmt.Errorf("hub/redis: delete retry get: %w", err)
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("hub/redis: delete retry: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, zRetryDue, m.ID)
	pipe.ZRem(ctx, zRetryLease, m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hub/redis: delete retry indexes: %w", err)
	}
	return nil
}

func (s *Store) CountRetries(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zRetryDue).Result()
	if err != nil {
		return 0, fmt.Errorf("hub/redis: count retries: %w", err)
	}
	return count, nil
}
