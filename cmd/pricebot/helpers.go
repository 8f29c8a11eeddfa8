package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/config"
	"github.com/Veraticus/pricebot/internal/dialog"
	"github.com/Veraticus/pricebot/internal/session"
	"github.com/Veraticus/pricebot/internal/storage"
)

// openStorage connects to the configured database without migrating it.
func openStorage(ctx context.Context, cfg *config.Config) (*storage.Storage, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg := cfg.Database.Postgres
		return storage.NewPostgresStorage(ctx, storage.PostgresOptions{
			DSN:             pg.DSN(),
			MaxOpenConns:    pg.MaxConnections,
			MaxIdleConns:    pg.MaxIdle,
			ConnMaxLifetime: pg.ConnMaxLifetime,
		})
	default:
		return storage.NewSQLiteStorage(cfg.Database.Path)
	}
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.Storage, error) {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initSessions returns the configured session store and a cleanup func.
func initSessions(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.Session.Backend != config.SessionRedis {
		return session.NewMemoryStore(), func() {}, nil
	}

	r := cfg.Session.Redis
	client, err := session.NewRedisClient(ctx, r.Address, r.Password, r.DB)
	if err != nil {
		return nil, nil, err
	}
	store := session.NewRedisStore(client, session.RedisOptions{TTL: cfg.Session.TTL})
	return store, func() { _ = client.Close() }, nil
}

func newRouter(store *storage.Storage, sessions session.Store, cfg *config.Config) *dialog.Router {
	return dialog.NewRouter(store, store, sessions, appLogger(), dialog.Config{
		StoreTimeout: cfg.Dialog.StoreTimeout,
		Retry: common.RetryOptions{
			MaxAttempts:  cfg.Dialog.ReadAttempts,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
	})
}

func appLogger() common.Logger {
	return common.NewZapLogger(zap.L())
}
