package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/ledger-replay/internal/config"
	"github.com/congo-pay/ledger-replay/internal/snapshot"
)

// OpenSnapshotStore builds the checkpoint store selected by cfg, guarded by a
// circuit breaker unless SNAPSHOT_BREAKER_FAILURES is 0. It returns a nil
// store for the "none" backend. The returned close function releases any
// connection and is always safe to call.
func OpenSnapshotStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (snapshot.Store, func(), error) {
	store, closeFn, err := openBackend(ctx, cfg, logger)
	if err != nil || store == nil || cfg.BreakerFailures == 0 {
		return store, closeFn, err
	}
	return snapshot.NewBreakerStore(store, cfg.BreakerFailures, cfg.BreakerCooldown, logger), closeFn, nil
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (snapshot.Store, func(), error) {
	noop := func() {}

	switch cfg.SnapshotBackend {
	case config.BackendNone:
		return nil, noop, nil

	case config.BackendFile:
		logger.Info("using file snapshots", slog.String("path", cfg.SnapshotPath))
		return snapshot.NewFileStore(cfg.SnapshotPath), noop, nil

	case config.BackendSQLite:
		db, err := NewSQLiteDB(ctx, cfg.SnapshotPath)
		if err != nil {
			return nil, noop, err
		}
		store := snapshot.NewSQLiteStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("migrate sqlite snapshots: %w", err)
		}
		logger.Info("using sqlite snapshots", slog.String("path", cfg.SnapshotPath))
		return store, func() { db.Close() }, nil

	case config.BackendRedis:
		client, err := NewRedisClient(ctx, cfg.RedisURL, cfg.AppName, cfg.SnapshotTimeout)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using redis snapshots", slog.String("key", cfg.SnapshotKey))
		return snapshot.NewRedisStore(client, cfg.SnapshotKey, 0), func() { client.Close() }, nil

	case config.BackendPostgres:
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			return nil, noop, err
		}
		store := snapshot.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("migrate postgres snapshots: %w", err)
		}
		logger.Info("using postgres snapshots")
		return store, pool.Close, nil
	}

	return nil, noop, fmt.Errorf("unsupported snapshot backend %q", cfg.SnapshotBackend)
}
