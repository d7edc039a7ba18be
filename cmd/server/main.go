/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (file, then env, then flags)
  2. Build the zap logger
  3. Open the ledger store (memory, sqlite or postgres)
  4. Open the alert store (Redis when configured, else the ledger store)
  5. Wire metrics, the kitchen service, handlers and router
  6. Run the HTTP server and the expiry sweep scheduler until a signal

COMMAND-LINE FLAGS:
  -config    Optional YAML config file
  -port      HTTP server port (overrides config)
  -db        SQLite database path (overrides config)
             Use ":memory:" for an in-memory database
  -store     memory | sqlite | postgres (overrides config)
  -scenario  Load a demo scenario on startup (resets the stores)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close store connections

EXAMPLES:
  # SQLite file database
  ./server -db="./data/stock.db"

  # Postgres ledger, Redis alerts
  STOCK_POSTGRES_DSN="host=localhost user=postgres dbname=stock sslmode=disable" \
  STOCK_REDIS_ADDR="localhost:6379" ./server -store=postgres

  # Throwaway demo
  ./server -store=memory -scenario=busy-service

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
  - kitchen/service.go: Service wiring
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/stock-engine/api"
	"github.com/warp/stock-engine/config"
	"github.com/warp/stock-engine/kitchen"
	"github.com/warp/stock-engine/observability"
	"github.com/warp/stock-engine/stock"
	memstore "github.com/warp/stock-engine/stock/store"
	"github.com/warp/stock-engine/store/postgres"
	"github.com/warp/stock-engine/store/redis"
	"github.com/warp/stock-engine/store/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	storeKind := flag.String("store", "", "Store backend: memory, sqlite or postgres")
	scenario := flag.String("scenario", "", "Demo scenario to load on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *storeKind != "" {
		cfg.Store.Kind = *storeKind
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Initialize stores
	ledgerStore, closeLedger, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeLedger()

	alertStore, closeAlerts, err := openAlertStore(cfg.Store, ledgerStore)
	if err != nil {
		return err
	}
	defer closeAlerts()

	// Wire the service
	metrics := observability.NewMetrics(nil)
	svc := kitchen.New(ledgerStore, alertStore, kitchen.Config{
		Logger:           logger.Named("stock"),
		Observer:         metrics,
		ExpiryWindowDays: &cfg.Alerts.ExpiryWindowDays,
		SweepParallelism: cfg.Alerts.SweepParallelism,
	})

	resetters := []api.Resetter{ledgerStore}
	if r, ok := alertStore.(api.Resetter); ok && cfg.Store.RedisAddr != "" {
		resetters = append(resetters, r)
	}
	handler := api.NewHandler(svc, logger, resetters...)

	scheduler := api.NewSweepScheduler(svc, logger)
	scheduler.Interval = cfg.Alerts.SweepInterval
	scheduler.Enabled = cfg.Alerts.SweepInterval > 0

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		JWTSecret:   cfg.Auth.JWTSecret,
		Metrics:     metrics.Handler(),
		Scheduler:   scheduler,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *scenario != "" {
		if err := handler.LoadScenarioByID(ctx, *scenario); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.Int("port", cfg.HTTP.Port),
			zap.String("store", cfg.Store.Kind),
			zap.Bool("redis_alerts", cfg.Store.RedisAddr != ""),
			zap.Bool("jwt", cfg.Auth.JWTSecret != ""))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// backend is what every ledger store provides.
type backend interface {
	stock.TxStore
	stock.AlertStore
	Reset(ctx context.Context) error
}

func openStore(cfg config.StoreConfig) (backend, func(), error) {
	switch cfg.Kind {
	case config.StoreMemory:
		return memstore.NewMemory(), func() {}, nil
	case config.StorePostgres:
		s, err := postgres.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s), nil
	default:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, closer(s), nil
	}
}

// openAlertStore returns a Redis alert store when an address is configured,
// otherwise the ledger store itself.
func openAlertStore(cfg config.StoreConfig, fallback backend) (stock.AlertStore, func(), error) {
	if cfg.RedisAddr == "" {
		return fallback, func() {}, nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	alerts := redis.New(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := alerts.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return alerts, closer(client), nil
}

func closer(c io.Closer) func() {
	return func() { c.Close() }
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
