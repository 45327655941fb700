package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arelis/hub"
	"github.com/arelis/hub/api"
	"github.com/arelis/hub/broadcast"
	"github.com/arelis/hub/observability"
	"github.com/arelis/hub/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the dispatcher and the admin API",
	GroupID: "server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return err
		}

		var publisher broadcast.Publisher = broadcast.NoopPublisher{}
		if cfg.NATSURL != "" {
			pub, err := broadcast.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("broadcast enabled", "nats_url", cfg.NATSURL)
		} else {
			logger.Info("broadcast disabled (HUB_NATS_URL not set)")
		}

		opts := append(cfg.HubOptions(),
			hub.WithStore(st),
			hub.WithLogger(logger),
			hub.WithTracer(observability.NewTracer()),
			hub.WithBroadcaster(publisher),
		)
		h, err := hub.New(opts...)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}

		var limiter *ratelimit.Limiter
		if cfg.RateLimit > 0 {
			limiter = ratelimit.New(cfg.RateLimit, cfg.RateWindow)
		}

		httpServer := &http.Server{
			Addr:              cfg.Addr,
			Handler:           mount(cfg.BasePath, api.NewHandler(h, nil, limiter, logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		h.Start(ctx)

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.Addr, "base_path", cfg.BasePath)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
				stop()
			}
		}()

		if limiter != nil {
			go pruneLimiter(ctx, limiter, cfg.RateWindow)
		}

		logger.Info("hub started",
			"driver", cfg.Store.Driver,
			"poll_interval", cfg.Dispatcher.PollInterval,
			"batch_size", cfg.Dispatcher.BatchSize,
		)

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatcher.ShutdownTimeout+5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		h.Stop(shutdownCtx)
		logger.Info("dispatcher stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// mount serves handler under basePath.
func mount(basePath string, handler http.Handler) http.Handler {
	basePath = strings.TrimSuffix(basePath, "/")
	if basePath == "" {
		return handler
	}
	mux := http.NewServeMux()
	mux.Handle(basePath+"/", http.StripPrefix(basePath, handler))
	return mux
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.Limiter, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}
