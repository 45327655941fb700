package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arelis/hub"
)

// Config is the hubd configuration. Values come from defaults, then the
// optional TOML file, then HUB_* environment variables.
type Config struct {
	Addr     string `toml:"addr"`      // HUB_ADDR (default ":8080")
	BasePath string `toml:"base_path"` // HUB_BASE_PATH (default "/v1")
	NATSURL  string `toml:"nats_url"`  // HUB_NATS_URL (optional, empty = no broadcast)

	// RateLimit is requests per RateWindow per client IP. 0 disables it.
	RateLimit  int           `toml:"rate_limit"`  // HUB_RATE_LIMIT
	RateWindow time.Duration `toml:"rate_window"` // HUB_RATE_WINDOW

	Store      StoreConfig      `toml:"store"`
	Log        LogConfig        `toml:"log"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `toml:"driver"` // HUB_STORE_DRIVER: memory, postgres, sqlite, mongo, redis
	DSN    string `toml:"dsn"`    // HUB_STORE_DSN
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Format string `toml:"format"` // HUB_LOG_FORMAT: text or json
	Level  string `toml:"level"`  // HUB_LOG_LEVEL: debug, info, warn, error
}

// DispatcherConfig mirrors hub.Config.
type DispatcherConfig struct {
	PollInterval    time.Duration `toml:"poll_interval"`   // HUB_POLL_INTERVAL
	BatchSize       int           `toml:"batch_size"`      // HUB_BATCH_SIZE
	Concurrency     int           `toml:"concurrency"`     // HUB_CONCURRENCY
	RequestTimeout  time.Duration `toml:"request_timeout"` // HUB_REQUEST_TIMEOUT
	MaxAttempts     int           `toml:"max_attempts"`    // HUB_MAX_ATTEMPTS
	BackoffBase     time.Duration `toml:"backoff_base"`    // HUB_BACKOFF_BASE
	BackoffMax      time.Duration `toml:"backoff_max"`     // HUB_BACKOFF_MAX
	LeaseTimeout    time.Duration `toml:"lease_timeout"`   // HUB_LEASE_TIMEOUT
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

var validDrivers = []string{"memory", "postgres", "sqlite", "mongo", "redis"}

func defaultConfig() Config {
	hc := hub.DefaultConfig()
	return Config{
		Addr:       ":8080",
		BasePath:   "/v1",
		RateLimit:  1000,
		RateWindow: time.Minute,
		Store:      StoreConfig{Driver: "memory"},
		Log:        LogConfig{Format: "text", Level: "info"},
		Dispatcher: DispatcherConfig{
			PollInterval:    hc.PollInterval,
			BatchSize:       hc.BatchSize,
			Concurrency:     hc.Concurrency,
			RequestTimeout:  hc.RequestTimeout,
			MaxAttempts:     hc.MaxAttempts,
			BackoffBase:     hc.BackoffBase,
			BackoffMax:      hc.BackoffMax,
			LeaseTimeout:    hc.LeaseTimeout,
			ShutdownTimeout: hc.ShutdownTimeout,
		},
	}
}

// loadConfig reads path (if set) and applies environment overrides.
func loadConfig(path string) (*Config, error) {
	c := defaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, "HUB_ADDR")
	setString(&c.BasePath, "HUB_BASE_PATH")
	setString(&c.NATSURL, "HUB_NATS_URL")
	setString(&c.Store.Driver, "HUB_STORE_DRIVER")
	setString(&c.Store.DSN, "HUB_STORE_DSN")
	setString(&c.Log.Format, "HUB_LOG_FORMAT")
	setString(&c.Log.Level, "HUB_LOG_LEVEL")

	return errors.Join(
		setInt(&c.RateLimit, "HUB_RATE_LIMIT"),
		setDuration(&c.RateWindow, "HUB_RATE_WINDOW"),
		setDuration(&c.Dispatcher.PollInterval, "HUB_POLL_INTERVAL"),
		setInt(&c.Dispatcher.BatchSize, "HUB_BATCH_SIZE"),
		setInt(&c.Dispatcher.Concurrency, "HUB_CONCURRENCY"),
		setDuration(&c.Dispatcher.RequestTimeout, "HUB_REQUEST_TIMEOUT"),
		setInt(&c.Dispatcher.MaxAttempts, "HUB_MAX_ATTEMPTS"),
		setDuration(&c.Dispatcher.BackoffBase, "HUB_BACKOFF_BASE"),
		setDuration(&c.Dispatcher.BackoffMax, "HUB_BACKOFF_MAX"),
		setDuration(&c.Dispatcher.LeaseTimeout, "HUB_LEASE_TIMEOUT"),
	)
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	if !slices.Contains(validDrivers, c.Store.Driver) {
		return fmt.Errorf("unknown store driver %q (must be one of %s)", c.Store.Driver, strings.Join(validDrivers, ", "))
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("HUB_STORE_DSN is required for the %s driver", c.Store.Driver)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q (must be text or json)", c.Log.Format)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base path %q must start with /", c.BasePath)
	}
	return nil
}

// HubOptions converts the dispatcher section to hub options.
func (c *Config) HubOptions() []hub.Option {
	d := c.Dispatcher
	return []hub.Option{
		hub.WithPollInterval(d.PollInterval),
		hub.WithBatchSize(d.BatchSize),
		hub.WithConcurrency(d.Concurrency),
		hub.WithRequestTimeout(d.RequestTimeout),
		hub.WithMaxAttempts(d.MaxAttempts),
		hub.WithBackoff(d.BackoffBase, d.BackoffMax),
		hub.WithLeaseTimeout(d.LeaseTimeout),
		hub.WithShutdownTimeout(d.ShutdownTimeout),
	}
}

func newLogger(c LogConfig) *slog.Logger {
	level, _ := parseLevel(c.Level) //nolint:errcheck // validated on load
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
