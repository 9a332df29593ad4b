package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	fitbitadapter "github.com/ericfisherdev/stepsync/internal/adapter/driven/fitbit"
	postgresadapter "github.com/ericfisherdev/stepsync/internal/adapter/driven/postgres"
	redisadapter "github.com/ericfisherdev/stepsync/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/stepsync/internal/adapter/driven/sqlite"
	queuehandler "github.com/ericfisherdev/stepsync/internal/adapter/driving/queue"
	"github.com/ericfisherdev/stepsync/internal/application"
	"github.com/ericfisherdev/stepsync/internal/config"
	"github.com/ericfisherdev/stepsync/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	driver, _ := cfg.DatabaseDriver()
	slog.Info("config loaded",
		"database_driver", driver,
		"queue_key", cfg.QueueKey,
		"pop_timeout", cfg.PopTimeout,
		"query_limit", cfg.QueryLimit,
		"fitbit_api_url", cfg.FitbitAPIURL,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to Redis (cache, rate-limit bookkeeping, queue, replies).
	rdb, err := redisadapter.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer closeWithLog("redis", rdb)
	slog.Info("redis connected")

	// 4. Open the credential store.
	credentialStore, closer, err := openCredentialStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWithLog("database", closer)

	// 5. Wire adapters.
	clock := quartz.NewReal()
	stepCache := redisadapter.NewStepCache(rdb, clock)
	rateLimitStore := redisadapter.NewRateLimitStore(rdb)
	queue := redisadapter.NewQueue(rdb, cfg.QueueKey, cfg.PopTimeout)

	fitbitClient, err := fitbitadapter.NewClient(fitbitadapter.Options{
		ClientID:     cfg.FitbitClientID,
		ClientSecret: cfg.FitbitClientSecret,
		APIURL:       cfg.FitbitAPIURL,
		TokenURL:     cfg.FitbitTokenURL,
		Timeout:      cfg.HTTPTimeout,
		CacheBytes:   cfg.HTTPCacheBytes,
	})
	if err != nil {
		return err
	}

	// 6. Create services.
	governor := application.NewGovernor(rateLimitStore, clock, cfg.QueryLimit)
	tokenSvc := application.NewTokenService(credentialStore, fitbitClient, clock)
	stepSvc := application.NewStepService(stepCache, credentialStore, fitbitClient, governor, tokenSvc, clock)
	commandSvc := application.NewCommandService(stepSvc, tokenSvc)

	// 7. Consume until shutdown; in-flight commands are drained before Run returns.
	consumer := queuehandler.NewConsumer(queue, queue, commandSvc, clock, logger)

	slog.Info("stepsync started", "queue_key", cfg.QueueKey)
	if err := consumer.Run(ctx); err != nil {
		return err
	}

	slog.Info("shutdown complete")
	return nil
}

// openCredentialStore selects the backend from DATABASE_URL. The SQLite store
// owns its schema and is migrated on startup; the Postgres table is owned by
// the front-end.
func openCredentialStore(ctx context.Context, cfg *config.Config) (driven.CredentialStore, io.Closer, error) {
	driver, dsn := cfg.DatabaseDriver()

	switch driver {
	case config.DriverPostgres:
		db, err := postgresadapter.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		slog.Info("database opened", "driver", driver)
		return postgresadapter.NewCredentialRepo(db), sqlDB, nil

	default:
		db, err := sqliteadapter.Open(ctx, dsn, cfg.SQLiteReaders)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return sqliteadapter.NewCredentialRepo(db), db, nil
	}
}

func closeWithLog(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("error closing "+name, "error", err)
	}
}
