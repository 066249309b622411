package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitewatch/sitewatch/internal/consumption"
	corecfg "github.com/sitewatch/sitewatch/internal/core/config"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/sitewatch/sitewatch/internal/core/storage/memory"
	"github.com/sitewatch/sitewatch/internal/core/storage/mongo"
	"github.com/sitewatch/sitewatch/internal/core/storage/postgres"
	"github.com/sitewatch/sitewatch/internal/core/timestamp"
	"github.com/sitewatch/sitewatch/internal/migrations"
	"github.com/sitewatch/sitewatch/internal/observability"
	"github.com/sitewatch/sitewatch/internal/server"
	"github.com/sitewatch/sitewatch/internal/tenant"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the consumption HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	// 0. Load configuration and initialize logger
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("Loaded config",
		"directory", cfg.Directory.Type,
		"store", cfg.Store.Driver,
		"max_in_flight_sessions", cfg.Aggregation.MaxInFlightSessions,
		"week_convention", cfg.Aggregation.WeekConvention)

	// 1. Metrics
	metrics := observability.New()

	// 2. Directory and tenant stores
	var (
		dir    storage.Directory
		opener storage.SessionOpener
	)

	var fixtures *memory.Fixtures
	if cfg.Fixtures.Path != "" {
		fixtures, err = memory.LoadFixtures(cfg.Fixtures.Path)
		if err != nil {
			return fmt.Errorf("failed to load fixtures: %w", err)
		}
	}
	memDir := memory.NewDirectory()
	memStore := memory.NewStore()
	if fixtures != nil {
		fixtures.Apply(memDir, memStore)
	}

	switch cfg.Directory.Type {
	case "postgres":
		db, err := postgres.Open(cfg.Directory.DSN, cfg.Directory.MaxOpenConns, cfg.Directory.MaxIdleConns)
		if err != nil {
			return fmt.Errorf("failed to initialize directory: %w", err)
		}
		defer db.Close()

		// 2.1. Run directory migrations
		if err := migrations.RunMigrations(db, cfg.Directory.AutoMigrate); err != nil {
			return fmt.Errorf("failed to run directory migrations: %w", err)
		}

		adapter, err := postgres.NewDirectoryAdapter(db)
		if err != nil {
			return fmt.Errorf("failed to initialize directory adapter: %w", err)
		}
		defer adapter.Close()
		dir = adapter
	default:
		dir = memDir
	}

	switch cfg.Store.Driver {
	case "mongo":
		opener = mongo.NewOpener(mongo.Options{
			URI:            cfg.Store.URI,
			ConnectTimeout: cfg.Store.ConnectTimeout,
			ConnectRetries: cfg.Store.ConnectRetries,
			RetryBackoff:   cfg.Store.RetryBackoff,
			AppName:        cfg.Store.AppName,
		}, metrics)
	default:
		opener = memStore
	}

	// 3. Tenant resolution
	resolver := tenant.NewResolver(dir, tenant.Options{
		CacheSize: cfg.Tenant.CacheSize,
		CacheTTL:  cfg.Tenant.CacheTTL,
	})

	// 4. Consumption service
	consumptionSvc := consumption.NewService(dir, resolver, opener, consumption.Options{
		MaxInFlight: cfg.Aggregation.MaxInFlightSessions,
		DefaultWeek: cfg.Aggregation.Week(),
		Normalizer:  timestamp.NewNormalizer(metrics.TimestampFallback),
		Failures:    metrics,
	})

	// 5. HTTP server
	srv := server.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), server.Options{
		Mode:     cfg.Server.Mode,
		Health:   dir,
		Observer: metrics,
		Metrics:  metrics.Handler(),
	})
	consumptionSvc.RegisterRoutes(srv.Engine)

	// 6. Start background work
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if cfg.Tenant.CacheTTL > 0 && cfg.Tenant.RefreshInterval > 0 {
		refresher := tenant.NewRefresher(cfg.Tenant.RefreshInterval, resolver)
		go func() {
			if err := refresher.Start(ctx); err != nil {
				slog.Error("Tenant refresher stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Tenant refresher disabled by config")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("Signal received, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

func loadConfig() (*corecfg.Config, error) {
	cfg, err := corecfg.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})))
	return cfg, nil
}
