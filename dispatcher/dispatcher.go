// Package dispatcher moves pending events to subscribers: it claims events,
// resolves the webhooks subscribed to each event type, delivers a signed
// payload to every one of them and records each attempt.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/observability"
	"github.com/arelis/hub/webhook"
)

// ErrTickInProgress is returned by Tick when the previous tick has not
// finished yet.
var ErrTickInProgress = errors.New("hub: dispatcher tick already running")

// Store is the persistence the dispatcher needs.
type Store interface {
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	ClaimPending(ctx context.Context, limit int) ([]*event.Event, error)
	CompleteEvent(ctx context.Context, evtID id.ID, status event.Status, errMsg string) error
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)

	GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error)
	ListSubscribers(ctx context.Context, eventType string) ([]*webhook.Webhook, error)

	CreateRecord(ctx context.Context, rec *delivery.Record) error
	EnqueueRetry(ctx context.Context, r *delivery.Retry) error
	ClaimDueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*delivery.Retry, error)
	DeleteRetry(ctx context.Context, retryID id.ID) error
}

// Config holds dispatcher configuration.
type Config struct {
	// Interval is the time between ticks.
	Interval time.Duration

	// BatchSize is the maximum number of events claimed per tick. It also
	// bounds the retries claimed per tick.
	BatchSize int

	// Concurrency bounds the deliveries in flight at once.
	Concurrency int

	// RequestTimeout bounds each subscriber call.
	RequestTimeout time.Duration

	// MaxAttempts bounds attempts per (webhook, event), first try included.
	MaxAttempts int

	// BackoffBase and BackoffMax shape the retry delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// LeaseTimeout is how long a claim holds before the sweep returns an
	// in-progress event to pending, and how long a claimed retry stays hidden.
	LeaseTimeout time.Duration

	HTTPClient *http.Client
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Second,
		BatchSize:      100,
		Concurrency:    10,
		RequestTimeout: 5 * time.Second,
		MaxAttempts:    5,
		BackoffBase:    5 * time.Second,
		BackoffMax:     time.Hour,
		LeaseTimeout:   2 * time.Minute,
	}
}

// Stats summarizes one tick.
type Stats struct {
	Released   int64 `json:"released"`
	Claimed    int   `json:"claimed"`
	Processed  int   `json:"processed"`
	Failed     int   `json:"failed"`
	Attempts   int   `json:"attempts"`
	Delivered  int   `json:"delivered"`
	Retried    int   `json:"retried"`
	RetriesRun int   `json:"retries_run"`
}

type tally struct {
	mu sync.Mutex
	s  Stats
}

func (t *tally) add(fn func(*Stats)) {
	t.mu.Lock()
	fn(&t.s)
	t.mu.Unlock()
}

// Dispatcher is the periodic fan-out loop.
type Dispatcher struct {
	store  Store
	sender *Sender
	policy Policy
	config Config
	logger *slog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a dispatcher. Zero config fields fall back to DefaultConfig.
func New(store Store, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)
	return &Dispatcher{
		store:  store,
		sender: NewSender(cfg.HTTPClient, cfg.RequestTimeout),
		policy: Policy{MaxAttempts: cfg.MaxAttempts, Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		config: cfg,
		logger: logger,
	}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = def.LeaseTimeout
	}
	return cfg
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}

// Start runs ticks every Interval until Stop is called or ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop(ctx)
	}()
}

// Stop cancels the loop and waits for the running tick to finish.
func (d *Dispatcher) Stop(_ context.Context) {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				if _, err := d.Tick(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
					d.logger.ErrorContext(ctx, "dispatcher tick failed", "error", err)
				}
			}()
		}
	}
}

// Tick runs one dispatch cycle: sweep stale claims, claim and fan out
// pending events, then run due retries. Only one tick runs at a time; an
// overlapping call returns ErrTickInProgress without doing anything.
//
// A failure to claim events ends the tick and is returned. Every other
// failure is logged and recorded as state.
//
// Cancelling ctx stops the tick from claiming more work. Events and retries
// it already claimed still run to completion, each delivery bounded by
// RequestTimeout.
func (d *Dispatcher) Tick(ctx context.Context) (Stats, error) {
	if !d.running.CompareAndSwap(false, true) {
		d.config.Metrics.RecordSkippedTick()
		d.logger.DebugContext(ctx, "dispatcher tick skipped, previous tick still running")
		return Stats{}, ErrTickInProgress
	}
	defer d.running.Store(false)

	var t tally
	sem := make(chan struct{}, d.config.Concurrency)

	if ctx.Err() != nil {
		return t.s, nil
	}

	d.sweep(ctx, &t)

	events, err := d.store.ClaimPending(ctx, d.config.BatchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "fetch pending events failed", "error", err)
		return t.s, err
	}
	t.s.Claimed = len(events)

	work := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, evt := range events {
		wg.Add(1)
		go func(evt *event.Event) {
			defer wg.Done()
			d.processEvent(work, evt, sem, &t)
		}(evt)
	}
	wg.Wait()

	if ctx.Err() == nil {
		d.runRetries(ctx, work, sem, &t)
	}

	return t.s, nil
}

// sweep returns events whose claim outlived LeaseTimeout to pending.
func (d *Dispatcher) sweep(ctx context.Context, t *tally) {
	cutoff := time.Now().UTC().Add(-d.config.LeaseTimeout)
	n, err := d.store.ReleaseStale(ctx, cutoff)
	if err != nil {
		d.logger.ErrorContext(ctx, "release stale events failed", "error", err)
		return
	}
	if n > 0 {
		d.config.Metrics.RecordReleased(n)
		d.logger.WarnContext(ctx, "released stale in-progress events", "count", n)
	}
	t.s.Released = n
}

// processEvent fans one claimed event out to its subscribers and marks it
// processed once every subscriber has been attempted.
func (d *Dispatcher) processEvent(ctx context.Context, evt *event.Event, sem chan struct{}, t *tally) {
	var span trace.Span
	if d.config.Tracer != nil {
		ctx, span = d.config.Tracer.StartEventSpan(ctx, evt.ID.String(), evt.Type)
		defer span.End()
	}

	subs, err := d.store.ListSubscribers(ctx, evt.Type)
	if err != nil {
		d.logger.ErrorContext(ctx, "resolve subscribers failed",
			"event_id", evt.ID, "type", evt.Type, "error", err)
		d.complete(ctx, evt, event.StatusFailed, err.Error())
		t.add(func(s *Stats) { s.Failed++ })
		return
	}

	var wg sync.WaitGroup
	for _, wh := range subs {
		sem <- struct{}{}
		wg.Add(1)
		go func(wh *webhook.Webhook) {
			defer wg.Done()
			defer func() { <-sem }()
			d.attempt(ctx, evt, wh, 1, t)
		}(wh)
	}
	wg.Wait()

	d.complete(ctx, evt, event.StatusProcessed, "")
	t.add(func(s *Stats) { s.Processed++ })

	d.logger.DebugContext(ctx, "event processed",
		"event_id", evt.ID, "type", evt.Type, "subscribers", len(subs))
}

func (d *Dispatcher) complete(ctx context.Context, evt *event.Event, status event.Status, errMsg string) {
	if err := d.store.CompleteEvent(context.WithoutCancel(ctx), evt.ID, status, errMsg); err != nil {
		d.logger.ErrorContext(ctx, "mark event failed",
			"event_id", evt.ID, "status", status, "error", err)
	}
}

// attempt performs one delivery, appends its record and queues the next
// attempt when the failure is retryable.
func (d *Dispatcher) attempt(ctx context.Context, evt *event.Event, wh *webhook.Webhook, attempt int, t *tally) {
	var span trace.Span
	if d.config.Tracer != nil {
		ctx, span = d.config.Tracer.StartDeliverySpan(ctx, evt.ID.String(), wh.ID.String(), attempt)
	}

	res := d.sender.Send(ctx, wh, evt)

	rec := &delivery.Record{
		ID:         id.NewDeliveryID(),
		WebhookID:  wh.ID,
		EventID:    evt.ID,
		Status:     delivery.StatusDelivered,
		Attempt:    attempt,
		StatusCode: res.StatusCode,
		LatencyMs:  res.LatencyMs,
		CreatedAt:  time.Now().UTC(),
	}
	if !res.OK() {
		rec.Status = delivery.StatusFailed
		rec.Error = errorText(res)
	}

	// The record is written even when ctx was cancelled during the call.
	storeCtx := context.WithoutCancel(ctx)
	if err := d.store.CreateRecord(storeCtx, rec); err != nil {
		d.logger.ErrorContext(ctx, "write delivery record failed",
			"event_id", evt.ID, "webhook_id", wh.ID, "attempt", attempt, "error", err)
	}

	decision := d.policy.Decide(res, attempt)
	if decision == Retry {
		r := &delivery.Retry{
			ID:        id.NewRetryID(),
			WebhookID: wh.ID,
			EventID:   evt.ID,
			Attempt:   attempt + 1,
			DueAt:     time.Now().UTC().Add(d.policy.Backoff(attempt)),
			LastError: rec.Error,
			CreatedAt: time.Now().UTC(),
		}
		if err := d.store.EnqueueRetry(storeCtx, r); err != nil {
			d.logger.ErrorContext(ctx, "enqueue retry failed",
				"event_id", evt.ID, "webhook_id", wh.ID, "error", err)
		} else {
			d.config.Metrics.RecordRetry(r.Attempt)
			t.add(func(s *Stats) { s.Retried++ })
		}
	}

	t.add(func(s *Stats) {
		s.Attempts++
		if rec.Status == delivery.StatusDelivered {
			s.Delivered++
		}
	})
	d.config.Metrics.RecordDelivery(string(rec.Status), float64(res.LatencyMs)/1000.0)

	if span != nil {
		d.config.Tracer.EndDeliverySpan(span, res.StatusCode, res.LatencyMs, rec.Error)
	}

	if rec.Status == delivery.StatusDelivered {
		d.logger.DebugContext(ctx, "delivered",
			"event_id", evt.ID, "webhook_id", wh.ID, "attempt", attempt,
			"status", res.StatusCode, "latency_ms", res.LatencyMs)
		return
	}
	d.logger.WarnContext(ctx, "delivery failed",
		"event_id", evt.ID, "webhook_id", wh.ID, "attempt", attempt,
		"status", res.StatusCode, "decision", decision.String(), "error", rec.Error)
}

// runRetries claims the retries that are due on ctx and performs them on work.
func (d *Dispatcher) runRetries(ctx, work context.Context, sem chan struct{}, t *tally) {
	retries, err := d.store.ClaimDueRetries(ctx, time.Now().UTC(), d.config.LeaseTimeout, d.config.BatchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "claim due retries failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, r := range retries {
		sem <- struct{}{}
		wg.Add(1)
		go func(r *delivery.Retry) {
			defer wg.Done()
			defer func() { <-sem }()
			d.retry(work, r, t)
		}(r)
	}
	wg.Wait()
}

func (d *Dispatcher) retry(ctx context.Context, r *delivery.Retry, t *tally) {
	wh, err := d.store.GetWebhook(ctx, r.WebhookID)
	if err != nil {
		d.dropOrKeep(ctx, r, err, webhook.ErrNotFound)
		return
	}
	evt, err := d.store.GetEvent(ctx, r.EventID)
	if err != nil {
		d.dropOrKeep(ctx, r, err, event.ErrNotFound)
		return
	}

	d.attempt(ctx, evt, wh, r.Attempt, t)
	t.add(func(s *Stats) { s.RetriesRun++ })

	if err := d.store.DeleteRetry(context.WithoutCancel(ctx), r.ID); err != nil {
		d.logger.ErrorContext(ctx, "delete retry failed", "retry_id", r.ID, "error", err)
	}
}

// dropOrKeep deletes a retry whose webhook or event no longer exists. Any
// other lookup error leaves it for a later tick once the lease expires.
func (d *Dispatcher) dropOrKeep(ctx context.Context, r *delivery.Retry, err, gone error) {
	if !errors.Is(err, gone) {
		d.logger.ErrorContext(ctx, "load retry target failed", "retry_id", r.ID, "error", err)
		return
	}
	d.logger.InfoContext(ctx, "dropping retry for deleted target",
		"retry_id", r.ID, "webhook_id", r.WebhookID, "event_id", r.EventID)
	if delErr := d.store.DeleteRetry(ctx, r.ID); delErr != nil {
		d.logger.ErrorContext(ctx, "delete retry failed", "retry_id", r.ID, "error", delErr)
	}
}

func errorText(res Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return http.StatusText(res.StatusCode)
}
