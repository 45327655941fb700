package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	gu "github.com/xraph/go-utils/metrics"

	"github.com/arelis/hub"
	"github.com/arelis/hub/api"
	"github.com/arelis/hub/observability"
	"github.com/arelis/hub/ratelimit"
	"github.com/arelis/hub/store"
)

// Name is the extension name used for config keys and DI registration.
const Name = "hub"

// ErrNotInitialized is returned when the extension is used before Init.
var ErrNotInitialized = errors.New("hub: extension not initialized")

// Extension mounts a Hub into a Forge application.
type Extension struct {
	config  Config
	opts    []hub.Option
	store   store.Store
	logger  *slog.Logger
	metrics gu.MetricFactory

	hub     *hub.Hub
	limiter *ratelimit.Limiter
	handler http.Handler
}

// New creates a new hub Forge extension.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return Name }

// Config returns the effective configuration.
func (e *Extension) Config() Config { return e.config }

// Init builds the Hub, runs migrations unless disabled and prepares the
// HTTP handler. It must run before Start or any route registration.
func (e *Extension) Init(ctx context.Context) error {
	if e.store == nil {
		return hub.ErrNoStore
	}

	if !e.config.DisableMigrations {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("hub: migrate: %w", err)
		}
	}

	opts := append([]hub.Option{
		hub.WithStore(e.store),
		hub.WithLogger(e.logger),
	}, e.config.ToHubOptions()...)
	if e.metrics != nil {
		opts = append(opts, hub.WithMetrics(observability.NewMetrics(e.metrics)))
	}
	opts = append(opts, e.opts...)

	h, err := hub.New(opts...)
	if err != nil {
		return err
	}
	e.hub = h

	if e.config.RateLimit > 0 {
		e.limiter = ratelimit.New(e.config.RateLimit, e.config.RateWindow)
	}
	e.handler = api.NewHandler(h, nil, e.limiter, e.logger)
	return nil
}

// RegisterRoutes mounts the admin API with OpenAPI metadata under BasePath.
// The inbound receiver needs the raw body and is served by Handler instead.
func (e *Extension) RegisterRoutes(router forge.Router, log forge.Logger) error {
	if e.hub == nil {
		return ErrNotInitialized
	}
	if e.config.DisableRoutes {
		return nil
	}
	api.NewForgeAPI(e.hub, log).RegisterRoutes(router.Group(e.config.BasePath))
	return nil
}

// Handler returns the net/http admin API, inbound receiver included, with
// BasePath stripped.
func (e *Extension) Handler() http.Handler {
	if e.handler == nil {
		return http.NotFoundHandler()
	}
	prefix := strings.TrimSuffix(e.config.BasePath, "/")
	if prefix == "" {
		return e.handler
	}
	return http.StripPrefix(prefix, e.handler)
}

// Start begins the dispatcher loop.
func (e *Extension) Start(ctx context.Context) error {
	if e.hub == nil {
		return ErrNotInitialized
	}
	e.hub.Start(ctx)
	e.logger.InfoContext(ctx, "hub extension started", "base_path", e.config.BasePath)
	return nil
}

// Stop drains the dispatcher and prunes idle rate-limit buckets.
func (e *Extension) Stop(ctx context.Context) error {
	if e.hub == nil {
		return nil
	}
	e.hub.Stop(ctx)
	if e.limiter != nil {
		e.limiter.Prune()
	}
	return nil
}

// Health reports whether the store is reachable.
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return hub.ErrNoStore
	}
	return e.store.Ping(ctx)
}

// Hub returns the Hub built by Init, or nil before Init.
func (e *Extension) Hub() *hub.Hub { return e.hub }
