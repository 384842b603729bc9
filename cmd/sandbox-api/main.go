package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/corekit/storefront/internal/api"
	"github.com/corekit/storefront/internal/config"
	"github.com/corekit/storefront/internal/logging"
	"github.com/corekit/storefront/internal/metrics"
	"github.com/corekit/storefront/internal/repository"
	"github.com/corekit/storefront/internal/repository/memory"
	"github.com/corekit/storefront/internal/repository/postgres"
	"github.com/corekit/storefront/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadSandbox()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Sandbox API stopped", zap.Error(err))
	}
}

func run(cfg *config.SandboxConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, db, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	products := service.DefaultCatalog()
	if cfg.CatalogFile != "" {
		products, err = service.LoadCatalog(afero.NewOsFs(), cfg.CatalogFile)
		if err != nil {
			return err
		}
	}
	if err := service.SeedCatalog(ctx, repos, products); err != nil {
		return err
	}
	logger.Info("Catalog seeded", zap.Int("products", len(products)))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	router := api.NewRouter(cfg, repos, registry, metrics.NewServerMetrics(registry, "sandbox"), logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Sandbox API starting",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.Store),
			zap.Bool("hold_orders", cfg.HoldOrders),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down sandbox API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func openRepositories(ctx context.Context, cfg *config.SandboxConfig, logger *zap.Logger) (*repository.Repositories, *sql.DB, error) {
	if cfg.Store == "memory" {
		return memory.NewRepositories(), nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("Connected to database", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))
	return postgres.NewRepositories(db, logger), db, nil
}
