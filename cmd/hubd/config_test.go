package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var hubEnvVars = []string{
	"HUB_ADDR", "HUB_BASE_PATH", "HUB_NATS_URL", "HUB_STORE_DRIVER", "HUB_STORE_DSN",
	"HUB_LOG_FORMAT", "HUB_LOG_LEVEL", "HUB_RATE_LIMIT", "HUB_RATE_WINDOW",
	"HUB_POLL_INTERVAL", "HUB_BATCH_SIZE", "HUB_CONCURRENCY", "HUB_REQUEST_TIMEOUT",
	"HUB_MAX_ATTEMPTS", "HUB_BACKOFF_BASE", "HUB_BACKOFF_MAX", "HUB_LEASE_TIMEOUT",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range hubEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	for _, tc := range []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "Defaults",
			env:  map[string]string{},
			check: func(t *testing.T, c *Config) {
				if c.Addr != ":8080" {
					t.Errorf("Addr = %q, want :8080", c.Addr)
				}
				if c.BasePath != "/v1" {
					t.Errorf("BasePath = %q, want /v1", c.BasePath)
				}
				if c.Store.Driver != "memory" {
					t.Errorf("Store.Driver = %q, want memory", c.Store.Driver)
				}
				if c.Dispatcher.PollInterval != 5*time.Second {
					t.Errorf("PollInterval = %v, want 5s", c.Dispatcher.PollInterval)
				}
				if c.Dispatcher.BatchSize != 100 {
					t.Errorf("BatchSize = %d, want 100", c.Dispatcher.BatchSize)
				}
				if c.Dispatcher.RequestTimeout != 5*time.Second {
					t.Errorf("RequestTimeout = %v, want 5s", c.Dispatcher.RequestTimeout)
				}
				if c.NATSURL != "" {
					t.Errorf("NATSURL = %q, want empty", c.NATSURL)
				}
			},
		},
		{
			name: "EnvOverrides",
			env: map[string]string{
				"HUB_ADDR":          ":3000",
				"HUB_NATS_URL":      "nats://localhost:4222",
				"HUB_STORE_DRIVER":  "Postgres",
				"HUB_STORE_DSN":     "postgres://localhost/hub",
				"HUB_POLL_INTERVAL": "1s",
				"HUB_BATCH_SIZE":    "25",
				"HUB_LOG_FORMAT":    "json",
				"HUB_LOG_LEVEL":     "debug",
			},
			check: func(t *testing.T, c *Config) {
				if c.Addr != ":3000" {
					t.Errorf("Addr = %q, want :3000", c.Addr)
				}
				if c.NATSURL != "nats://localhost:4222" {
					t.Errorf("NATSURL = %q", c.NATSURL)
				}
				if c.Store.Driver != "postgres" {
					t.Errorf("Store.Driver = %q, want postgres", c.Store.Driver)
				}
				if c.Dispatcher.PollInterval != time.Second {
					t.Errorf("PollInterval = %v, want 1s", c.Dispatcher.PollInterval)
				}
				if c.Dispatcher.BatchSize != 25 {
					t.Errorf("BatchSize = %d, want 25", c.Dispatcher.BatchSize)
				}
				if c.Log.Format != "json" || c.Log.Level != "debug" {
					t.Errorf("Log = %+v", c.Log)
				}
			},
		},
		{
			name:    "UnknownDriver",
			env:     map[string]string{"HUB_STORE_DRIVER": "cassandra"},
			wantErr: true,
		},
		{
			name:    "DSNRequired",
			env:     map[string]string{"HUB_STORE_DRIVER": "sqlite"},
			wantErr: true,
		},
		{
			name:    "BadDuration",
			env:     map[string]string{"HUB_POLL_INTERVAL": "soon"},
			wantErr: true,
		},
		{
			name:    "BadInt",
			env:     map[string]string{"HUB_BATCH_SIZE": "lots"},
			wantErr: true,
		},
		{
			name:    "BadLogLevel",
			env:     map[string]string{"HUB_LOG_LEVEL": "loud"},
			wantErr: true,
		},
		{
			name:    "RelativeBasePath",
			env:     map[string]string{"HUB_BASE_PATH": "v1"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := loadConfig("")
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearAllEnv(t)

	path := filepath.Join(t.TempDir(), "hub.toml")
	content := `
addr = ":9000"
rate_limit = 0

[store]
driver = "sqlite"
dsn = "file:hub.db"

[dispatcher]
poll_interval = "2s"
max_attempts = 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HUB_ADDR", ":9100")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Errorf("Addr = %q, want env override :9100", cfg.Addr)
	}
	if cfg.RateLimit != 0 {
		t.Errorf("RateLimit = %d, want 0", cfg.RateLimit)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "file:hub.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Dispatcher.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Dispatcher.PollInterval)
	}
	if cfg.Dispatcher.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Dispatcher.MaxAttempts)
	}
	// Untouched keys keep their defaults.
	if cfg.Dispatcher.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.Dispatcher.BatchSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearAllEnv(t)
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(LogConfig{Format: "json", Level: "warn"})
	if logger.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(t.Context(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestMount(t *testing.T) {
	var gotPath string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	h := mount("/v1/", inner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/webhooks", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if gotPath != "/webhooks" {
		t.Errorf("path = %q, want /webhooks", gotPath)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unprefixed status = %d, want 404", rec.Code)
	}
}
