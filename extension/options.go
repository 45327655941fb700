package extension

import (
	"log/slog"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/arelis/hub"
	"github.com/arelis/hub/store"
)

// ExtOption configures the hub Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLogger sets the logger shared by the Hub and the API.
func WithLogger(logger *slog.Logger) ExtOption {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records hub metrics through factory, typically fapp.Metrics()
// from the hosting Forge application.
func WithMetrics(factory gu.MetricFactory) ExtOption {
	return func(e *Extension) {
		e.metrics = factory
	}
}

// WithBasePath sets the URL prefix for all hub routes.
func WithBasePath(prefix string) ExtOption {
	return func(e *Extension) {
		e.config.BasePath = prefix
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithHubOption appends a raw hub.Option, applied after the config.
func WithHubOption(opt hub.Option) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, opt)
	}
}

// WithRateLimit sets the per-IP request budget. A zero limit disables it.
func WithRateLimit(limit int, window time.Duration) ExtOption {
	return func(e *Extension) {
		e.config.RateLimit = limit
		e.config.RateWindow = window
	}
}

// WithDisableRoutes disables automatic route registration.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrations disables automatic database migration on Init.
func WithDisableMigrations() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrations = true
	}
}
