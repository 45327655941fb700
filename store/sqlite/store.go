package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("%w: sqlite: create executor: %w", hubstore.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", hubstore.ErrMigrationFailed, err)
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
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", evtID.String()).
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
	q := s.sdb.NewSelect(&models)

	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
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

func (s *Store) ClaimPending(ctx context.Context, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	t := now()

	// SQLite serializes writes (WAL mode), so no FOR UPDATE SKIP LOCKED needed.
	var models []eventModel
	err := s.sdb.NewRaw(`
		UPDATE hub_events
		SET status = 'in_progress', claimed_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM hub_events
			WHERE status = 'pending'
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		)
		RETURNING *
	`, t, t, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	sort.Slice(models, func(i, j int) bool {
		if models[i].CreatedAt == models[j].CreatedAt {
			return models[i].ID < models[j].ID
		}
		return models[i].CreatedAt < models[j].CreatedAt
	})
	return fromEventModels(models)
}

func (s *Store) CompleteEvent(ctx context.Context, evtID id.ID, status event.Status, errMsg string) error {
	if !status.Terminal() {
		return event.ErrInvalidTransition
	}

	t := now()
	res, err := s.sdb.NewUpdate((*eventModel)(nil)).
		Set("status = ?", string(status)).
		Set("error = ?", errMsg).
		Set("processed_at = ?", t).
		Set("updated_at = ?", t).
		Where("id = ?", evtID.String()).
		Where("status = ?", string(event.StatusInProgress)).
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

	if _, err := s.GetEvent(ctx, evtID); err != nil {
		return err
	}
	return event.ErrInvalidTransition
}

func (s *Store) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := s.sdb.NewUpdate((*eventModel)(nil)).
		Set("status = ?", string(event.StatusPending)).
		Set("claimed_at = NULL").
		Set("updated_at = ?", now()).
		Where("status = ?", string(event.StatusInProgress)).
		Where("claimed_at < ?", formatTime(claimedBefore)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountByStatus(ctx context.Context, status event.Status) (int64, error) {
	count, err := s.sdb.NewSelect((*eventModel)(nil)).
		Where("status = ?", string(status)).
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
	_, err := s.sdb.NewInsert(toWebhookModel(wh)).Exec(ctx)
	return err
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", whID.String()).
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
	res, err := s.sdb.NewDelete((*webhookModel)(nil)).
		Where("id = ?", whID.String()).
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
	q := s.sdb.NewSelect(&models)
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

// ListSubscribers filters in Go because events is a JSON text column.
func (s *Store) ListSubscribers(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	var models []webhookModel
	if err := s.sdb.NewSelect(&models).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	var result []*webhook.Webhook
	for i := range models {
		if !slices.Contains(models[i].events(), eventType) {
			continue
		}
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, wh)
	}
	return result, nil
}

// ==================== Delivery Store ====================

func (s *Store) CreateRecord(ctx context.Context, rec *delivery.Record) error {
	_, err := s.sdb.NewInsert(toRecordModel(rec)).Exec(ctx)
	return err
}

func (s *Store) ListRecords(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Record, error) {
	var models []recordModel
	q := s.sdb.NewSelect(&models)

	if !opts.WebhookID.IsNil() {
		q = q.Where("webhook_id = ?", opts.WebhookID.String())
	}
	if !opts.EventID.IsNil() {
		q = q.Where("event_id = ?", opts.EventID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
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
	_, err := s.sdb.NewInsert(toRetryModel(r)).Exec(ctx)
	return err
}

func (s *Store) ClaimDueRetries(ctx context.Context, at time.Time, lease time.Duration, limit int) ([]*delivery.Retry, error) {
	if limit <= 0 {
		limit = -1
	}
	var models []retryModel
	err := s.sdb.NewRaw(`
		UPDATE hub_delivery_retries
		SET locked_until = ?
		WHERE id IN (
			SELECT id FROM hub_delivery_retries
			WHERE due_at <= ? AND (locked_until IS NULL OR locked_until <= ?)
			ORDER BY due_at ASC
			LIMIT ?
		)
		RETURNING *
	`, formatTime(at.Add(lease)), formatTime(at), formatTime(at), limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].DueAt < models[j].DueAt
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
	res, err := s.sdb.NewDelete((*retryModel)(nil)).
		Where("id = ?", retryID.String()).
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
	count, err := s.sdb.NewSelect((*retryModel)(nil)).Count(ctx)
	return count, err
}

// ==================== Agent Store ====================

func (s *Store) UpsertAgent(ctx context.Context, a *agent.Agent) error {
	t := now()
	m := toAgentModel(a)
	if a.CreatedAt.IsZero() {
		m.CreatedAt = t
	}
	m.UpdatedAt = t

	_, err := s.sdb.NewInsert(m).
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
	err := s.sdb.NewSelect(m).
		Where("uuid = ?", uuid).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, agent.ErrNotFound
		}
		return nil, err
	}
	return fromAgentModel(m)
}

func (s *Store) ListAgents(ctx context.Context, opts agent.ListOpts) ([]*agent.Agent, int64, error) {
	cq := s.sdb.NewSelect((*agentModel)(nil))
	if opts.Status != "" {
		cq = cq.Where("status = ?", string(opts.Status))
	}
	if opts.CustomerID != "" {
		cq = cq.Where("customer_id = ?", opts.CustomerID)
	}
	total, err := cq.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	var models []agentModel
	q := s.sdb.NewSelect(&models)
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.CustomerID != "" {
		q = q.Where("customer_id = ?", opts.CustomerID)
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
		a, err := fromAgentModel(&models[i])
		if err != nil {
			return nil, 0, err
		}
		result[i] = a
	}
	return result, total, nil
}

func (s *Store) SetAgentStatus(ctx context.Context, uuid string, status agent.Status) error {
	res, err := s.sdb.NewUpdate((*agentModel)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", now()).
		Where("uuid = ?", uuid).
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

// now returns the current time in the stored TEXT layout.
func now() string {
	return formatTime(time.Now())
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
