package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	hubstore "github.com/arelis/hub/store"
	"github.com/arelis/hub/webhook"
)

// compile-time interface check
var _ hubstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("%w: postgres: create executor: %w", hubstore.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", hubstore.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Event Store ====================

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m, err := toEventModel(evt)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), opts.Type)
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromEventModels(models)
}

// ClaimPending uses FOR UPDATE SKIP LOCKED so concurrent dispatchers
// partition the pending set instead of blocking on each other.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]*event.Event, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	var models []eventModel
	err := s.pg.NewRaw(`
		UPDATE hub_events
		SET status = 'in_progress', claimed_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM hub_events
			WHERE status = 'pending'
			ORDER BY created_at ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, lim).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	sort.Slice(models, func(i, j int) bool {
		if models[i].CreatedAt.Equal(models[j].CreatedAt) {
			return models[i].ID < models[j].ID
		}
		return models[i].CreatedAt.Before(models[j].CreatedAt)
	})
	return fromEventModels(models)
}

func (s *Store) CompleteEvent(ctx context.Context, evtID id.ID, status event.Status, errMsg string) error {
	if !status.Terminal() {
		return event.ErrInvalidTransition
	}

	now := time.Now().UTC()
	res, err := s.pg.NewUpdate((*eventModel)(nil)).
		Set("status = $1", string(status)).
		Set("error = $2", errMsg).
		Set("processed_at = $3", now).
		Set("updated_at = $4", now).
		Where("id = $5", evtID.String()).
		Where("status = $6", string(event.StatusInProgress)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	exists, err := s.pg.NewSelect((*eventModel)(nil)).
		Where("id = $1", evtID.String()).
		Count(ctx)
	if err != nil {
		return err
	}
	if exists == 0 {
		return event.ErrNotFound
	}
	return event.ErrInvalidTransition
}

func (s *Store) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := s.pg.NewUpdate((*eventModel)(nil)).
		Set("status = $1", string(event.StatusPending)).
		Set("claimed_at = NULL").
		Set("updated_at = $2", time.Now().UTC()).
		Where("status = $3", string(event.StatusInProgress)).
		Where("claimed_at < $4", claimedBefore).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountByStatus(ctx context.Context, status event.Status) (int64, error) {
	count, err := s.pg.NewSelect((*eventModel)(nil)).
		Where("status = $1", string(status)).
		Count(ctx)
	return count, err
}

func fromEventModels(models []eventModel) ([]*event.Event, error) {
	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	_, err := s.pg.NewInsert(toWebhookModel(wh)).Exec(ctx)
	return err
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", whID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, webhook.ErrNotFound
		}
		return nil, err
	}
	return fromWebhookModel(m)
}

func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	res, err := s.pg.NewDelete((*webhookModel)(nil)).
		Where("id = $1", whID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.pg.NewSelect(&models)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromWebhookModels(models)
}

func (s *Store) ListSubscribers(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	var models []webhookModel
	err := s.pg.NewSelect(&models).
		Where("$1 = ANY(events)", eventType).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromWebhookModels(models)
}

func fromWebhookModels(models []webhookModel) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = wh
	}
	return result, nil
}

// ==================== Delivery Store ====================

func (s *Store) CreateRecord(ctx context.Context, rec *delivery.Record) error {
	_, err := s.pg.NewInsert(toRecordModel(rec)).Exec(ctx)
	return err
}

func (s *Store) ListRecords(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Record, error) {
	var models []recordModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.WebhookID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("webhook_id = $%d", argIdx), opts.WebhookID.String())
	}
	if !opts.EventID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("event_id = $%d", argIdx), opts.EventID.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.Record, len(models))
	for i := range models {
		rec, err := fromRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = rec
	}
	return result, nil
}

func (s *Store) EnqueueRetry(ctx context.Context, r *delivery.Retry) error {
	_, err := s.pg.NewInsert(toRetryModel(r)).Exec(ctx)
	return err
}

func (s *Store) ClaimDueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*delivery.Retry, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	var models []retryModel
	err := s.pg.NewRaw(`
		UPDATE hub_delivery_retries
		SET locked_until = $1
		WHERE id IN (
			SELECT id FROM hub_delivery_retries
			WHERE due_at <= $2 AND (locked_until IS NULL OR locked_until <= $2)
			ORDER BY due_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, now.Add(lease), now, lim).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].DueAt.Before(models[j].DueAt)
	})

	result := make([]*delivery.Retry, len(models))
	for i := range models {
		r, err := fromRetryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) DeleteRetry(ctx context.Context, retryID id.ID) error {
	res, err := s.pg.NewDelete((*retryModel)(nil)).
		Where("id = $1", retryID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return delivery.ErrRetryNotFound
	}
	return nil
}

func (s *Store) CountRetries(ctx context.Context) (int64, error) {
	count, err := s.pg.NewSelect((*retryModel)(nil)).Count(ctx)
	return count, err
}

// ==================== Agent Store ====================

func (s *Store) UpsertAgent(ctx context.Context, a *agent.Agent) error {
	m := toAgentModel(a)
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.pg.NewInsert(m).
		OnConflict("(uuid) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("customer_id = EXCLUDED.customer_id").
		Set("status = EXCLUDED.status").
		Set("current_executions = EXCLUDED.current_executions").
		Set("max_executions = EXCLUDED.max_executions").
		Set("last_execution_at = EXCLUDED.last_execution_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetAgent(ctx context.Context, uuid string) (*agent.Agent, error) {
	m := new(agentModel)
	err := s.pg.NewSelect(m).
		Where("uuid = $1", uuid).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, agent.ErrNotFound
		}
		return nil, err
	}
	return fromAgentModel(m), nil
}

func (s *Store) ListAgents(ctx context.Context, opts agent.ListOpts) ([]*agent.Agent, int64, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.CustomerID != "" {
		args = append(args, opts.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}

	cq := s.pg.NewSelect((*agentModel)(nil))
	for i, clause := range where {
		cq = cq.Where(clause, args[i])
	}
	total, err := cq.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	var models []agentModel
	q := s.pg.NewSelect(&models)
	for i, clause := range where {
		q = q.Where(clause, args[i])
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, uuid DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, 0, err
	}

	result := make([]*agent.Agent, len(models))
	for i := range models {
		result[i] = fromAgentModel(&models[i])
	}
	return result, total, nil
}

func (s *Store) SetAgentStatus(ctx context.Context, uuid string, status agent.Status) error {
	res, err := s.pg.NewUpdate((*agentModel)(nil)).
		Set("status = $1", string(status)).
		Set("updated_at = $2", time.Now().UTC()).
		Where("uuid = $3", uuid).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return agent.ErrNotFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
