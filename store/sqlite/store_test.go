package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
	"github.com/arelis/hub/webhook"
)

func ctx() context.Context { return context.Background() }

// newTestStore opens a migrated store on a fresh database file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	sdb := sqlitedriver.New()
	dsn := "file:" + filepath.Join(t.TempDir(), "hub.db")
	if err := sdb.Open(ctx(), dsn); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		t.Fatalf("grove open: %v", err)
	}
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func newEvent(typ string, created time.Time) *event.Event {
	return &event.Event{
		Entity: entity.Entity{CreatedAt: created, UpdatedAt: created},
		ID:     id.NewEventID(),
		Type:   typ,
		Data:   map[string]any{"agent_uuid": "a1"},
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

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(ctx()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
}

func TestEventRoundTrip(t *testing.T) {
	s := newTestStore(t)
	created := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
	evt := newEvent("agent.status.changed", created)

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
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.Data["agent_uuid"] != "a1" {
		t.Errorf("Data = %v", got.Data)
	}
	if got.ClaimedAt != nil || got.ProcessedAt != nil {
		t.Errorf("expected no claim or processed time, got %+v", got)
	}

	if _, err := s.GetEvent(ctx(), id.NewEventID()); !errors.Is(err, event.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimCompleteRelease(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	var ids []id.ID
	for i := range 3 {
		evt := newEvent("a.b", base.Add(time.Duration(i)*time.Second))
		ids = append(ids, evt.ID)
		if err := s.CreateEvent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := s.ClaimPending(ctx(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	for i, evt := range claimed {
		if evt.ID.String() != ids[i].String() {
			t.Errorf("claim %d: got %s, want %s", i, evt.ID, ids[i])
		}
		if evt.Status != event.StatusInProgress || evt.ClaimedAt == nil {
			t.Errorf("claim %d: expected in_progress with ClaimedAt, got %+v", i, evt)
		}
	}

	if err := s.CompleteEvent(ctx(), ids[0], event.StatusProcessed, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteEvent(ctx(), ids[0], event.StatusFailed, "late"); !errors.Is(err, event.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after processed, got %v", err)
	}
	if err := s.CompleteEvent(ctx(), ids[2], event.StatusProcessed, ""); !errors.Is(err, event.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for unclaimed event, got %v", err)
	}
	if err := s.CompleteEvent(ctx(), id.NewEventID(), event.StatusProcessed, ""); !errors.Is(err, event.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, _ := s.GetEvent(ctx(), ids[0])
	if got.Status != event.StatusProcessed || got.ProcessedAt == nil {
		t.Fatalf("expected processed with ProcessedAt, got %+v", got)
	}

	// Only the second claim is still in progress.
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
	released, _ := s.GetEvent(ctx(), ids[1])
	if released.Status != event.StatusPending || released.ClaimedAt != nil {
		t.Fatalf("expected pending without claim, got %+v", released)
	}

	if c, _ := s.CountByStatus(ctx(), event.StatusPending); c != 2 {
		t.Fatalf("expected 2 pending, got %d", c)
	}

	rest, err := s.ClaimPending(ctx(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 || rest[0].ID.String() != ids[1].String() {
		t.Fatalf("expected both pending events oldest first, got %+v", rest)
	}
}

func TestListSubscribersExactMatch(t *testing.T) {
	s := newTestStore(t)
	a := newWebhook("agent.status.changed")
	b := newWebhook("agent.status.changed", "agent.created")
	c := newWebhook("agent.status")
	d := newWebhook("agent.status.changed.v2")
	for _, wh := range []*webhook.Webhook{a, b, c, d} {
		if err := s.CreateWebhook(ctx(), wh); err != nil {
			t.Fatal(err)
		}
	}

	subs, err := s.ListSubscribers(ctx(), "agent.status.changed")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, wh := range subs {
		got[wh.ID.String()] = true
		if wh.Secret == "" {
			t.Errorf("subscriber %s lost its secret", wh.ID)
		}
	}
	if len(got) != 2 || !got[a.ID.String()] || !got[b.ID.String()] {
		t.Fatalf("expected exactly webhooks a and b, got %v", got)
	}

	if err := s.DeleteWebhook(ctx(), a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetWebhook(ctx(), a.ID); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordsAppendAndFilter(t *testing.T) {
	s := newTestStore(t)
	evtID := id.NewEventID()
	whA, whB := id.NewWebhookID(), id.NewWebhookID()
	base := time.Now().UTC()

	for i, wh := range []id.ID{whA, whB, whA} {
		rec := &delivery.Record{
			ID:         id.NewDeliveryID(),
			WebhookID:  wh,
			EventID:    evtID,
			Status:     delivery.StatusFailed,
			Error:      "http 500",
			Attempt:    i + 1,
			StatusCode: 500,
			CreatedAt:  base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.CreateRecord(ctx(), rec); err != nil {
			t.Fatal(err)
		}
	}

	byEvent, err := s.ListRecords(ctx(), delivery.ListOpts{EventID: evtID})
	if err != nil {
		t.Fatal(err)
	}
	if len(byEvent) != 3 || byEvent[0].Attempt != 3 {
		t.Fatalf("expected 3 records newest first, got %+v", byEvent)
	}

	byWebhook, _ := s.ListRecords(ctx(), delivery.ListOpts{WebhookID: whA})
	if len(byWebhook) != 2 {
		t.Fatalf("expected 2 records for webhook A, got %d", len(byWebhook))
	}
}

func TestRetryQueueLease(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	due := &delivery.Retry{ID: id.NewRetryID(), WebhookID: id.NewWebhookID(), EventID: id.NewEventID(), Attempt: 2, DueAt: now.Add(-time.Second), CreatedAt: now}
	later := &delivery.Retry{ID: id.NewRetryID(), WebhookID: id.NewWebhookID(), EventID: id.NewEventID(), Attempt: 2, DueAt: now.Add(time.Hour), CreatedAt: now}
	for _, r := range []*delivery.Retry{due, later} {
		if err := s.EnqueueRetry(ctx(), r); err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := s.ClaimDueRetries(ctx(), now, time.Minute, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].ID.String() != due.ID.String() {
		t.Fatalf("expected only the due retry, got %+v", claimed)
	}
	if claimed[0].LockedUntil == nil {
		t.Fatal("expected LockedUntil to be set")
	}

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

func TestAgentUpsertKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	a := &agent.Agent{UUID: "a1", Name: "support", CustomerID: "cus_1", Status: agent.StatusActive}
	if err := s.UpsertAgent(ctx(), a); err != nil {
		t.Fatal(err)
	}
	first, err := s.GetAgent(ctx(), "a1")
	if err != nil {
		t.Fatal(err)
	}

	a.Name = "support-v2"
	if err := s.UpsertAgent(ctx(), a); err != nil {
		t.Fatal(err)
	}
	second, _ := s.GetAgent(ctx(), "a1")
	if second.Name != "support-v2" {
		t.Errorf("Name = %q, want support-v2", second.Name)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on upsert: %v -> %v", first.CreatedAt, second.CreatedAt)
	}

	if err := s.SetAgentStatus(ctx(), "a1", agent.StatusPaused); err != nil {
		t.Fatal(err)
	}
	list, total, err := s.ListAgents(ctx(), agent.ListOpts{Status: agent.StatusPaused})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(list) != 1 || list[0].UUID != "a1" {
		t.Fatalf("unexpected list: total=%d list=%+v", total, list)
	}
	if err := s.SetAgentStatus(ctx(), "missing", agent.StatusPaused); !errors.Is(err, agent.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 5, time.UTC)
	b := time.Date(2026, 1, 1, 0, 0, 0, 500, time.UTC)
	c := time.Date(2026, 1, 1, 0, 0, 1, 0, time.FixedZone("x", 3600)) // 23:00:01 UTC the day before

	if !(formatTime(c) < formatTime(a) && formatTime(a) < formatTime(b)) {
		t.Fatalf("unexpected order: %s %s %s", formatTime(c), formatTime(a), formatTime(b))
	}

	for _, s := range []string{formatTime(b), "2026-01-01 00:00:00"} {
		if _, err := parseTime(s); err != nil {
			t.Errorf("parseTime(%q): %v", s, err)
		}
	}
}
