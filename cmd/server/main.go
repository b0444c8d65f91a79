package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ambulance-tracking/internal/config"
	"github.com/example/ambulance-tracking/internal/dispatch"
	"github.com/example/ambulance-tracking/internal/geo"
	httpapi "github.com/example/ambulance-tracking/internal/http"
	"github.com/example/ambulance-tracking/internal/ingest"
	"github.com/example/ambulance-tracking/internal/logging"
	"github.com/example/ambulance-tracking/internal/payments"
	"github.com/example/ambulance-tracking/internal/storage"
	"github.com/example/ambulance-tracking/internal/tracking"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "error", err)
	}
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("tracking-api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup := wire(ctx, cfg, logger)
	defer cleanup()

	srv := httpapi.NewServer(cfg, deps, logger)
	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("ambulance tracking listening", "addr", cfg.HTTPAddr)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := srv.Close(); err != nil {
		logger.Warn("session teardown", "error", err)
	}
	logger.Info("ambulance tracking stopped")
}

// wire builds the optional backends. Anything not configured falls back to
// in-memory state or is left out.
func wire(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (httpapi.Deps, func()) {
	var (
		deps    httpapi.Deps
		closers []func() error
	)

	if cfg.RedisAddr != "" {
		rg := geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey, logger)
		deps.Geo = rg
		closers = append(closers, rg.Close)
	} else {
		deps.Geo = geo.NewIndex()
	}

	var store storage.DispatchStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Warn("postgres unavailable, using memory store", "error", err)
		} else {
			if cfg.RunMigrations {
				applied, err := ps.Migrate(ctx)
				if err != nil {
					logger.Error("migration failed", "error", err)
				} else {
					logger.Info("migrations applied", "files", applied)
				}
			}
			store = ps
			closers = append(closers, ps.Close)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}
	deps.Hooks = append(deps.Hooks, tracking.StoreSink{Store: store})

	deps.ExternalGeoFeed = consumerOwnsGeo(cfg)
	if deps.ExternalGeoFeed {
		logger.Info("vehicle index fed by dispatch consumer", "geo_key", cfg.RedisGeoKey)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		deps.Hooks = append(deps.Hooks, tracking.EventSink{Publisher: kp})
		closers = append(closers, kp.Close)
	}

	if cfg.StripeAPIKey != "" && cfg.CalloutFeeCents > 0 {
		billing := payments.NewStripeClient(cfg.StripeAPIKey)
		deps.Hooks = append(deps.Hooks, tracking.NewBillingSink(billing, store, cfg.CalloutFeeCents, cfg.CalloutFeeCurrency, logger))
	}

	deps.Clock = dispatch.RealClock
	return deps, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close backend", "error", err)
			}
		}
	}
}

// consumerOwnsGeo reports whether the event consumer projects vehicles into
// the shared Redis index. In that case the server must not write it too, or a
// lagging consumer could re-add a vehicle the server already removed.
func consumerOwnsGeo(cfg config.ServerConfig) bool {
	return cfg.RedisAddr != "" && len(cfg.KafkaBrokers) > 0
}
