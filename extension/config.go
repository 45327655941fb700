package extension

import (
	"time"

	"github.com/arelis/hub"
)

// Config holds configuration for the hub Forge extension.
// Fields can be set programmatically via ExtOption functions or loaded from
// YAML configuration files (under "extensions.hub" or "hub" keys).
type Config struct {
	// Config embeds the core hub configuration.
	hub.Config `json:",inline" yaml:",inline" mapstructure:",squash"`

	// BasePath is the URL prefix for all hub routes (default: "/v1").
	BasePath string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`

	// DisableRoutes disables automatic route registration with the Forge router.
	DisableRoutes bool `json:"disable_routes" yaml:"disable_routes" mapstructure:"disable_routes"`

	// DisableMigrations disables automatic database migration on Init.
	DisableMigrations bool `json:"disable_migrations" yaml:"disable_migrations" mapstructure:"disable_migrations"`

	// RateLimit is the number of API requests a client IP may make per
	// RateWindow. Zero disables rate limiting.
	RateLimit  int           `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	RateWindow time.Duration `json:"rate_window" yaml:"rate_window" mapstructure:"rate_window"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:     hub.DefaultConfig(),
		BasePath:   "/v1",
		RateLimit:  1000,
		RateWindow: time.Minute,
	}
}

// ToHubOptions converts the embedded Config into hub.Option values.
func (c Config) ToHubOptions() []hub.Option {
	var opts []hub.Option

	if c.PollInterval > 0 {
		opts = append(opts, hub.WithPollInterval(c.PollInterval))
	}
	if c.BatchSize > 0 {
		opts = append(opts, hub.WithBatchSize(c.BatchSize))
	}
	if c.Concurrency > 0 {
		opts = append(opts, hub.WithConcurrency(c.Concurrency))
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, hub.WithRequestTimeout(c.RequestTimeout))
	}
	if c.MaxAttempts > 0 {
		opts = append(opts, hub.WithMaxAttempts(c.MaxAttempts))
	}
	if c.BackoffBase > 0 || c.BackoffMax > 0 {
		opts = append(opts, hub.WithBackoff(c.BackoffBase, c.BackoffMax))
	}
	if c.LeaseTimeout > 0 {
		opts = append(opts, hub.WithLeaseTimeout(c.LeaseTimeout))
	}
	if c.ShutdownTimeout > 0 {
		opts = append(opts, hub.WithShutdownTimeout(c.ShutdownTimeout))
	}

	return opts
}
