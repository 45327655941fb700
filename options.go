package hub

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arelis/hub/broadcast"
	"github.com/arelis/hub/observability"
	"github.com/arelis/hub/store"
)

// Option configures a Hub instance.
type Option func(*Hub) error

// WithStore sets the persistence backend for the Hub instance.
func WithStore(s store.Store) Option {
	return func(h *Hub) error {
		h.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Hub instance.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) error {
		h.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration. Zero fields fall back to
// DefaultConfig values.
func WithConfig(cfg Config) Option {
	return func(h *Hub) error {
		h.config = cfg
		return nil
	}
}

// WithPollInterval sets how often the dispatcher claims pending events.
func WithPollInterval(d time.Duration) Option {
	return func(h *Hub) error {
		h.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of events claimed per tick.
func WithBatchSize(n int) Option {
	return func(h *Hub) error {
		h.config.BatchSize = n
		return nil
	}
}

// WithConcurrency sets the number of subscriber calls in flight at once.
func WithConcurrency(n int) Option {
	return func(h *Hub) error {
		h.config.Concurrency = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Hub) error {
		h.config.RequestTimeout = d
		return nil
	}
}

// WithMaxAttempts sets the attempts per webhook and event, first try included.
func WithMaxAttempts(n int) Option {
	return func(h *Hub) error {
		h.config.MaxAttempts = n
		return nil
	}
}

// WithBackoff sets the retry delay window.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(h *Hub) error {
		h.config.BackoffBase = base
		h.config.BackoffMax = maxDelay
		return nil
	}
}

// WithLeaseTimeout sets how long a claimed event may stay in_progress.
func WithLeaseTimeout(d time.Duration) Option {
	return func(h *Hub) error {
		h.config.LeaseTimeout = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum time Stop waits for in-flight deliveries.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Hub) error {
		h.config.ShutdownTimeout = d
		return nil
	}
}

// WithMetrics enables dispatcher and publish metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hub) error {
		h.metrics = m
		return nil
	}
}

// WithTracer enables delivery spans.
func WithTracer(t *observability.Tracer) Option {
	return func(h *Hub) error {
		h.tracer = t
		return nil
	}
}

// WithBroadcaster mirrors every published event to p.
func WithBroadcaster(p broadcast.Publisher) Option {
	return func(h *Hub) error {
		h.broadcaster = p
		return nil
	}
}

// WithHTTPClient sets the client used for subscriber calls.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Hub) error {
		h.httpClient = c
		return nil
	}
}
