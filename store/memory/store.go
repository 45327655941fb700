// Package memory provides an in-memory Store implementation for tests and
// single-process deployments.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	hubstore "github.com/arelis/hub/store"
	"github.com/arelis/hub/webhook"
)

// compile-time interface check.
var _ hubstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	events   map[string]*event.Event     // keyed by ID string
	webhooks map[string]*webhook.Webhook // keyed by ID string
	records  []*delivery.Record          // append-only
	retries  map[string]*delivery.Retry  // keyed by ID string
	agents   map[string]*agent.Agent     // keyed by UUID

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		events:   make(map[string]*event.Event),
		webhooks: make(map[string]*webhook.Webhook),
		retries:  make(map[string]*delivery.Retry),
		agents:   make(map[string]*agent.Agent),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return hubstore.ErrClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists a new event.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hubstore.ErrClosed
	}

	cp := copyEvent(evt)
	if cp.Status == "" {
		cp.Status = event.StatusPending
	}
	s.events[evt.ID.String()] = cp
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, event.ErrNotFound
	}
	return copyEvent(evt), nil
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		if opts.Status != "" && evt.Status != opts.Status {
			continue
		}
		result = append(result, copyEvent(evt))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ClaimPending moves up to limit pending events, oldest first, to in_progress.
func (s *Store) ClaimPending(_ context.Context, limit int) ([]*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, hubstore.ErrClosed
	}

	candidates := make([]*event.Event, 0)
	for _, evt := range s.events {
		if evt.Status == event.StatusPending {
			candidates = append(candidates, evt)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID.String() < candidates[j].ID.String()
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	now := time.Now().UTC()
	result := make([]*event.Event, 0, len(candidates))
	for _, evt := range candidates {
		evt.Status = event.StatusInProgress
		evt.ClaimedAt = &now
		evt.UpdatedAt = now
		result = append(result, copyEvent(evt))
	}
	return result, nil
}

// CompleteEvent moves an in-progress event to a terminal status.
func (s *Store) CompleteEvent(_ context.Context, evtID id.ID, status event.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return event.ErrNotFound
	}
	if !status.Terminal() || evt.Status != event.StatusInProgress {
		return event.ErrInvalidTransition
	}

	now := time.Now().UTC()
	evt.Status = status
	evt.Error = errMsg
	evt.ProcessedAt = &now
	evt.UpdatedAt = now
	return nil
}

// ReleaseStale returns old in-progress claims to pending.
func (s *Store) ReleaseStale(_ context.Context, claimedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, evt := range s.events {
		if evt.Status != event.StatusInProgress || evt.ClaimedAt == nil {
			continue
		}
		if evt.ClaimedAt.Before(claimedBefore) {
			evt.Status = event.StatusPending
			evt.ClaimedAt = nil
			evt.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// CountByStatus returns the number of events in the given status.
func (s *Store) CountByStatus(_ context.Context, status event.Status) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, evt := range s.events {
		if evt.Status == status {
			n++
		}
	}
	return n, nil
}

func copyEvent(evt *event.Event) *event.Event {
	cp := *evt
	return &cp
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hubstore.ErrClosed
	}

	cp := *wh
	cp.Events = slices.Clone(wh.Events)
	s.webhooks[wh.ID.String()] = &cp
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(_ context.Context, whID id.ID) (*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wh, ok := s.webhooks[whID.String()]
	if !ok {
		return nil, webhook.ErrNotFound
	}
	cp := *wh
	return &cp, nil
}

// DeleteWebhook removes a webhook.
func (s *Store) DeleteWebhook(_ context.Context, whID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[whID.String()]; !ok {
		return webhook.ErrNotFound
	}
	delete(s.webhooks, whID.String())
	return nil
}

// ListWebhooks returns webhooks newest first.
func (s *Store) ListWebhooks(_ context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Webhook, 0, len(s.webhooks))
	for _, wh := range s.webhooks {
		cp := *wh
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListSubscribers returns every webhook whose Events contains eventType.
func (s *Store) ListSubscribers(_ context.Context, eventType string) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, hubstore.ErrClosed
	}

	result := make([]*webhook.Webhook, 0)
	for _, wh := range s.webhooks {
		if wh.Subscribes(eventType) {
			cp := *wh
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// CreateRecord appends a delivery record.
func (s *Store) CreateRecord(_ context.Context, rec *delivery.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hubstore.ErrClosed
	}

	cp := *rec
	s.records = append(s.records, &cp)
	return nil
}

// ListRecords returns records newest first.
func (s *Store) ListRecords(_ context.Context, opts delivery.ListOpts) ([]*delivery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Record, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if !opts.WebhookID.IsNil() && rec.WebhookID.String() != opts.WebhookID.String() {
			continue
		}
		if !opts.EventID.IsNil() && rec.EventID.String() != opts.EventID.String() {
			continue
		}
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// EnqueueRetry schedules a follow-up attempt.
func (s *Store) EnqueueRetry(_ context.Context, r *delivery.Retry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hubstore.ErrClosed
	}

	cp := *r
	s.retries[r.ID.String()] = &cp
	return nil
}

// ClaimDueRetries leases due entries, earliest first.
func (s *Store) ClaimDueRetries(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*delivery.Retry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, hubstore.ErrClosed
	}

	candidates := make([]*delivery.Retry, 0)
	for _, r := range s.retries {
		if r.DueAt.After(now) {
			continue
		}
		if r.LockedUntil != nil && r.LockedUntil.After(now) {
			continue
		}
		candidates = append(candidates, r)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DueAt.Before(candidates[j].DueAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	until := now.Add(lease)
	result := make([]*delivery.Retry, 0, len(candidates))
	for _, r := range candidates {
		r.LockedUntil = &until
		cp := *r
		result = append(result, &cp)
	}
	return result, nil
}

// DeleteRetry removes a retry entry.
func (s *Store) DeleteRetry(_ context.Context, retryID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.retries[retryID.String()]; !ok {
		return delivery.ErrRetryNotFound
	}
	delete(s.retries, retryID.String())
	return nil
}

// CountRetries returns the number of queued retries.
func (s *Store) CountRetries(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.retries)), nil
}

// ──────────────────────────────────────────────────
// agent.Store
// ──────────────────────────────────────────────────

// UpsertAgent creates or replaces an agent row.
func (s *Store) UpsertAgent(_ context.Context, a *agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hubstore.ErrClosed
	}

	cp := *a
	now := time.Now().UTC()
	if existing, ok := s.agents[a.UUID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.agents[a.UUID] = &cp
	return nil
}

// GetAgent returns an agent row by UUID.
func (s *Store) GetAgent(_ context.Context, uuid string) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[uuid]
	if !ok {
		return nil, agent.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAgents returns a filtered page of agents, newest first, and the total.
func (s *Store) ListAgents(_ context.Context, opts agent.ListOpts) ([]*agent.Agent, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		if opts.CustomerID != "" && a.CustomerID != opts.CustomerID {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	total := int64(len(result))
	return applyPagination(result, opts.Offset, opts.Limit), total, nil
}

// SetAgentStatus overwrites an agent's status.
func (s *Store) SetAgentStatus(_ context.Context, uuid string, status agent.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[uuid]
	if !ok {
		return agent.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) && offset > 0 {
		return []*T{}
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
