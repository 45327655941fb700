package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
	hubstore "github.com/arelis/hub/store"
	"github.com/arelis/hub/webhook"
)

func ctx() context.Context { return context.Background() }

func newEvent(typ string, created time.Time) *event.Event {
	return &event.Event{
		Entity: entity.Entity{CreatedAt: created, UpdatedAt: created},
		ID:     id.NewEventID(),
		Type:   typ,
		Data:   map[string]any{"k": "v"},
		Status: event.StatusPending,
	}
}

func newWebhook(events ...string) *webhook.Webhook {
	return &webhook.Webhook{
		Entity: entity.New(),
		ID:     id.NewWebhookID(),
		URL:    "https://example.com/hook",
		Events: events,
		Secret: "0123456789abcdef0123456789abcdef",
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, hubstore.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.ClaimPending(ctx(), 10); !errors.Is(err, hubstore.ErrClosed) {
		t.Fatalf("expected ErrClosed from ClaimPending, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

func TestEventCreateGet(t *testing.T) {
	s := New()
	evt := newEvent("agent.status.changed", time.Now().UTC())

	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEvent(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != evt.Type || got.Status != event.StatusPending {
		t.Fatalf("unexpected event: %+v", got)
	}

	if _, err := s.GetEvent(ctx(), id.NewEventID()); !errors.Is(err, event.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimPendingOldestFirstAndOnce(t *testing.T) {
	s := New()
	base := time.Now().UTC()

	var ids []id.ID
	for i := range 5 {
		evt := newEvent("a.b", base.Add(time.Duration(i)*time.Second))
		ids = append(ids, evt.ID)
		if err := s.CreateEvent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
	}

	first, err := s.ClaimPending(ctx(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 claimed, got %d", len(first))
	}
	for i, evt := range first {
		if evt.ID.String() != ids[i].String() {
			t.Errorf("claim %d: got %s, want %s", i, evt.ID, ids[i])
		}
		if evt.Status != event.StatusInProgress || evt.ClaimedAt == nil {
			t.Errorf("claim %d: expected in_progress with ClaimedAt, got %+v", i, evt)
		}
	}

	second, err := s.ClaimPending(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 {
		t.Fatalf("expected the 2 remaining events, got %d", len(second))
	}

	third, _ := s.ClaimPending(ctx(), 10)
	if len(third) != 0 {
		t.Fatalf("expected nothing left to claim, got %d", len(third))
	}
}

func TestClaimPendingConcurrentCallersNeverShare(t *testing.T) {
	s := New()
	for range 50 {
		if err := s.CreateEvent(ctx(), newEvent("a.b", time.Now().UTC())); err != nil {
			t.Fatal(err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := s.ClaimPending(ctx(), 7)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			for _, evt := range batch {
				seen[evt.ID.String()]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for evtID, n := range seen {
		if n != 1 {
			t.Errorf("event %s claimed %d times", evtID, n)
		}
	}
}

func TestCompleteEventTerminalStatusesAreFinal(t *testing.T) {
	s := New()
	evt := newEvent("a.b", time.Now().UTC())
	_ = s.CreateEvent(ctx(), evt)

	// Not yet claimed.
	if err := s.CompleteEvent(ctx(), evt.ID, event.StatusProcessed, ""); !errors.Is(err, event.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition before claim, got %v", err)
	}

	if _, err := s.ClaimPending(ctx(), 1); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteEvent(ctx(), evt.ID, event.StatusPending, ""); !errors.Is(err, event.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for non-terminal target, got %v", err)
	}
	if err := s.CompleteEvent(ctx(), evt.ID, event.StatusProcessed, ""); err != nil {
		t.Fatal(err)
	}

	// Terminal: every further transition is refused.
	if err := s.CompleteEvent(ctx(), evt.ID, event.StatusFailed, "late"); !errors.Is(err, event.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after processed, got %v", err)
	}
	if n, _ := s.ReleaseStale(ctx(), time.Now().Add(time.Hour)); n != 0 {
		t.Fatalf("released %d terminal events", n)
	}

	got, _ := s.GetEvent(ctx(), evt.ID)
	if got.Status != event.StatusProcessed || got.ProcessedAt == nil {
		t.Fatalf("expected processed with ProcessedAt, got %+v", got)
	}
}

func TestReleaseStale(t *testing.T) {
	s := New()
	evt := newEvent("a.b", time.Now().UTC())
	_ = s.CreateEvent(ctx(), evt)
	_, _ = s.ClaimPending(ctx(), 1)

	if n, _ := s.ReleaseStale(ctx(), time.Now().Add(-time.Minute)); n != 0 {
		t.Fatalf("fresh claim released: %d", n)
	}

	n, err := s.ReleaseStale(ctx(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 released, got %d", n)
	}

	got, _ := s.GetEvent(ctx(), evt.ID)
	if got.Status != event.StatusPending || got.ClaimedAt != nil {
		t.Fatalf("expected pending without claim, got %+v", got)
	}
}

func TestEventListFiltersAndCounts(t *testing.T) {
	s := New()
	base := time.Now().UTC()
	_ = s.CreateEvent(ctx(), newEvent("a.one", base))
	_ = s.CreateEvent(ctx(), newEvent("a.two", base.Add(time.Second)))
	_ = s.CreateEvent(ctx(), newEvent("a.one", base.Add(2*time.Second)))

	got, _ := s.ListEvents(ctx(), event.ListOpts{Type: "a.one"})
	if len(got) != 2 {
		t.Fatalf("expected 2 a.one events, got %d", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Error("expected newest first")
	}

	page, _ := s.ListEvents(ctx(), event.ListOpts{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].Type != "a.two" {
		t.Fatalf("unexpected page: %+v", page)
	}

	if n, _ := s.CountByStatus(ctx(), event.StatusPending); n != 3 {
		t.Fatalf("expected 3 pending, got %d", n)
	}
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

func TestWebhookCRUD(t *testing.T) {
	s := New()
	wh := newWebhook("agent.status.changed")

	if err := s.CreateWebhook(ctx(), wh); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetWebhook(ctx(), wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != wh.URL || got.Secret != wh.Secret {
		t.Fatalf("unexpected webhook: %+v", got)
	}

	list, _ := s.ListWebhooks(ctx(), webhook.ListOpts{})
	if len(list) != 1 {
		t.Fatalf("expected 1 webhook, got %d", len(list))
	}

	if err := s.DeleteWebhook(ctx(), wh.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteWebhook(ctx(), wh.ID); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := s.GetWebhook(ctx(), wh.ID); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSubscribersExactMatch(t *testing.T) {
	s := New()
	a := newWebhook("agent.status.changed")
	b := newWebhook("agent.status.changed", "agent.created")
	c := newWebhook("agent.status")
	d := newWebhook("agent.status.changed.v2")
	for _, wh := range []*webhook.Webhook{a, b, c, d} {
		_ = s.CreateWebhook(ctx(), wh)
	}

	subs, err := s.ListSubscribers(ctx(), "agent.status.changed")
	if err != nil {
		t.Fatal(err)
	}

	got := map[string]bool{}
	for _, wh := range subs {
		got[wh.ID.String()] = true
	}
	if len(got) != 2 || !got[a.ID.String()] || !got[b.ID.String()] {
		t.Fatalf("expected exactly webhooks a and b, got %v", got)
	}
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

func TestRecordsAppendAndFilter(t *testing.T) {
	s := New()
	evtID := id.NewEventID()
	whA, whB := id.NewWebhookID(), id.NewWebhookID()

	for i, wh := range []id.ID{whA, whB, whA} {
		rec := &delivery.Record{
			ID:        id.NewDeliveryID(),
			WebhookID: wh,
			EventID:   evtID,
			Status:    delivery.StatusFailed,
			Attempt:   i + 1,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateRecord(ctx(), rec); err != nil {
			t.Fatal(err)
		}
	}

	byEvent, _ := s.ListRecords(ctx(), delivery.ListOpts{EventID: evtID})
	if len(byEvent) != 3 {
		t.Fatalf("expected 3 records, got %d", len(byEvent))
	}
	if byEvent[0].Attempt != 3 {
		t.Errorf("expected newest first, got attempt %d", byEvent[0].Attempt)
	}

	byWebhook, _ := s.ListRecords(ctx(), delivery.ListOpts{WebhookID: whA})
	if len(byWebhook) != 2 {
		t.Fatalf("expected 2 records for webhook A, got %d", len(byWebhook))
	}

	delivered, _ := s.ListRecords(ctx(), delivery.ListOpts{Status: delivery.StatusDelivered})
	if len(delivered) != 0 {
		t.Fatalf("expected no delivered records, got %d", len(delivered))
	}
}

func TestRetryQueueLease(t *testing.T) {
	s := New()
	now := time.Now().UTC()

	due := &delivery.Retry{ID: id.NewRetryID(), WebhookID: id.NewWebhookID(), EventID: id.NewEventID(), Attempt: 2, DueAt: now.Add(-time.Second)}
	later := &delivery.Retry{ID: id.NewRetryID(), WebhookID: id.NewWebhookID(), EventID: id.NewEventID(), Attempt: 2, DueAt: now.Add(time.Hour)}
	_ = s.EnqueueRetry(ctx(), due)
	_ = s.EnqueueRetry(ctx(), later)

	claimed, err := s.ClaimDueRetries(ctx(), now, time.Minute, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].ID.String() != due.ID.String() {
		t.Fatalf("expected only the due retry, got %+v", claimed)
	}

	// Leased: invisible until the lease passes.
	again, _ := s.ClaimDueRetries(ctx(), now, time.Minute, 10)
	if len(again) != 0 {
		t.Fatalf("leased retry claimed twice: %d", len(again))
	}
	expired, _ := s.ClaimDueRetries(ctx(), now.Add(2*time.Minute), time.Minute, 10)
	if len(expired) != 1 {
		t.Fatalf("expected retry to be claimable after lease, got %d", len(expired))
	}

	if err := s.DeleteRetry(ctx(), due.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRetry(ctx(), due.ID); !errors.Is(err, delivery.ErrRetryNotFound) {
		t.Fatalf("expected ErrRetryNotFound, got %v", err)
	}
	if n, _ := s.CountRetries(ctx()); n != 1 {
		t.Fatalf("expected 1 queued retry, got %d", n)
	}
}

// ──────────────────────────────────────────────────
// agent.Store
// ──────────────────────────────────────────────────

func TestAgentUpsertListAndStatus(t *testing.T) {
	s := New()
	a := &agent.Agent{UUID: "8f14e45f-ceea-4e7a-9f5b-6c1d2a3b4c5d", Name: "support", CustomerID: "cus_1", Status: agent.StatusActive}
	b := &agent.Agent{UUID: "c9f0f895-fb98-4b91-8e7e-2a3b4c5d6e7f", Name: "sales", CustomerID: "cus_2", Status: agent.StatusPaused}
	_ = s.UpsertAgent(ctx(), a)
	_ = s.UpsertAgent(ctx(), b)

	list, total, err := s.ListAgents(ctx(), agent.ListOpts{CustomerID: "cus_1"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(list) != 1 || list[0].UUID != a.UUID {
		t.Fatalf("unexpected filter result: total=%d list=%+v", total, list)
	}

	if err := s.SetAgentStatus(ctx(), a.UUID, agent.StatusStopped); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetAgent(ctx(), a.UUID)
	if got.Status != agent.StatusStopped {
		t.Fatalf("expected stopped, got %s", got.Status)
	}

	if err := s.SetAgentStatus(ctx(), "missing", agent.StatusStopped); !errors.Is(err, agent.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
