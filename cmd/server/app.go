package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/adapter/events"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

// app holds the process-wide dependencies every subcommand starts from.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	db    *sql.DB
	rdb   *redis.Client
	mysql *storage.MySQLAdapter

	repo       port.DatabaseRepository
	cache      port.CacheRepository
	publisher  events.Publisher
	metrics    *metrics.ServerMetrics
	rec        *metrics.Reconciliation
	reconciler *service.Reconciler
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logging.New(serviceName, cfg.LogLevel, os.Stdout),
		metrics:   metrics.NewServerMetrics(serviceName),
		publisher: events.New(cfg.KafkaBrokers, cfg.KafkaTopic),
	}

	switch cfg.StorageDriver {
	case config.DriverMemory:
		memory := storage.NewMemoryAdapter()
		a.repo, a.cache = memory, memory
		a.logger.Warn("using in-memory storage, state is lost on exit")
	default:
		if err := a.connect(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	a.rec = a.metrics.Reconciliation()
	a.reconciler = service.NewReconciler(a.repo, a.cache, a.publisher, a.rec, a.logger)
	a.reconciler.SetLockTTL(cfg.LockTTL)
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	db, err := sql.Open("mysql", a.cfg.MySQLDSN)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	a.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	a.logger.Info("connected to mysql")

	a.rdb = redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
		PoolSize: 100,
	})
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	a.logger.Info("connected to redis")

	a.mysql = storage.NewMySQLAdapter(db)
	a.repo = a.mysql
	a.cache = storage.NewRedisAdapter(a.rdb)
	return nil
}

func (a *app) probes() []handler.Probe {
	return []handler.Probe{
		{Name: "database", Check: a.repo.Ping},
		{Name: "cache", Check: a.cache.Ping},
	}
}

func (a *app) close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("close event publisher", logging.Err(err))
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
