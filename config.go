package hub

import "time"

// Config holds the configuration for a Hub instance.
type Config struct {
	// PollInterval is the time between dispatcher ticks.
	PollInterval time.Duration

	// BatchSize is the maximum number of events claimed per tick.
	BatchSize int

	// Concurrency bounds the subscriber calls in flight at once.
	Concurrency int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxAttempts bounds the attempts per webhook and event, first try included.
	MaxAttempts int

	// BackoffBase is the delay before the second attempt; it doubles per
	// attempt up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// LeaseTimeout is how long an event may stay in_progress before the
	// sweep returns it to pending.
	LeaseTimeout time.Duration

	// ShutdownTimeout is the maximum time Stop waits for in-flight deliveries.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		BatchSize:       100,
		Concurrency:     10,
		RequestTimeout:  5 * time.Second,
		MaxAttempts:     5,
		BackoffBase:     5 * time.Second,
		BackoffMax:      time.Hour,
		LeaseTimeout:    2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}
