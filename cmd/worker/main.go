// Package main is the entry point of the soft-delete retention worker.
// It periodically hard-deletes rows that have been soft-deleted for longer
// than the configured retention.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/juju/clock"

	"tombstone/internal/infrastructure/storage/postgres"
	"tombstone/internal/infrastructure/storage/sqlite"
	"tombstone/internal/orm"
	"tombstone/internal/softdelete"
	"tombstone/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	cfg := workerConfig{
		Driver:    getEnv("STORAGE_DRIVER", "postgres"),
		DSN:       mustEnv("DATABASE_URL"),
		Retention: getEnvDuration("SOFT_DELETE_RETENTION", 30*24*time.Hour),
		Interval:  getEnvDuration("PURGE_INTERVAL", time.Hour),
		MaxConns:  int32(getEnvInt("DB_MAX_CONNS", 10)),
	}

	log.Infow("starting tombstone retention worker",
		"driver", cfg.Driver,
		"retention", cfg.Retention.String(),
		"interval", cfg.Interval.String(),
	)

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer closeBackend()

	model, err := setupModel()
	if err != nil {
		log.Fatalw("failed to build model", "error", err)
	}

	purger := softdelete.NewPurger(backend, model, softdelete.WithPurgeLogger(log.WithComponent("purge")))
	worker := NewPurgeWorker(purger, cfg.Retention, cfg.Interval, clock.WallClock, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

type workerConfig struct {
	Driver    string
	DSN       string
	Retention time.Duration
	Interval  time.Duration
	MaxConns  int32
}

func openBackend(ctx context.Context, cfg workerConfig) (orm.Backend, func(), error) {
	switch cfg.Driver {
	case "postgres":
		poolCfg := postgres.DefaultPoolConfig(cfg.DSN)
		poolCfg.MaxConns = cfg.MaxConns
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, nil, err
		}
		pool.LogStats(ctx)
		return postgres.NewTxManager(pool), pool.Close, nil

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Driver)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
