// Package main provides the catalog API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spherical-ai/spherical/libs/catalog-engine/cmd/catalog-api/middleware"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/comparison"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Msg("Starting catalog API")

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	app, err := newApp(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer app.Close()

	routerCfg := RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = &middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RPS,
			Burst:             cfg.RateLimit.Burst,
		}
	}

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(logger, metrics, app.service, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Server error")
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// app owns the long-lived collaborators of the server.
type app struct {
	store   storage.Store
	cache   cache.Client
	sweeper *comparison.Sweeper
	service *catalog.Service
	logger  *observability.Logger
}

// newApp opens storage and the cache and builds the catalog service. With a
// memory cache, sessions live in process and are swept on a cron schedule;
// with redis they expire through key TTLs.
func newApp(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*app, error) {
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{store: store, logger: logger}

	var sessions comparison.SessionStore
	switch cfg.Cache.Driver {
	case "redis":
		rc, err := cache.NewRedisClient(ctx, cfg.RedisOptions())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.cache = rc
		sessions = comparison.NewCacheSessionStore(rc)
	default:
		a.cache = cache.NewMemoryClient(cfg.Cache.MaxEntries)
		memSessions := comparison.NewMemorySessionStore()
		a.sweeper = comparison.NewSweeper(memSessions, cfg.Sessions.SweepSchedule, logger, metrics)
		if err := a.sweeper.Start(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("start session sweeper: %w", err)
		}
		sessions = memSessions
	}

	a.service = catalog.NewService(store, catalog.Options{
		Logger:   logger,
		Metrics:  metrics,
		Cache:    a.cache,
		Sessions: sessions,
		Search: catalog.SearchConfig{
			DefaultLimit: cfg.Search.DefaultLimit,
			MaxLimit:     cfg.Search.MaxLimit,
			Overfetch:    cfg.Search.Overfetch,
		},
		ComparisonCacheTTL: cfg.Comparison.CacheTTL,
		Session: comparison.SessionConfig{
			TTL:         cfg.Sessions.TTL,
			MaxProducts: cfg.Sessions.MaxProducts,
		},
	})
	return a, nil
}

// Close stops the sweeper and releases the cache and storage.
func (a *app) Close() {
	if a.sweeper != nil {
		a.sweeper.Stop()
		a.sweeper = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close cache")
		}
		a.cache = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.store = nil
	}
}
