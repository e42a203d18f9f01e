package bootstrap

import (
	"context"
	"fmt"
	"time"

	"argus/config"
	"argus/storage"

	"go.uber.org/zap"
)

// InitStore opens the configured storage backend
func InitStore(cfg *config.Config, sugar *zap.SugaredLogger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		sugar.Info("Using in-memory storage (no persistence across restarts)")
		return storage.NewMemory(), nil
	case "sqlite":
		store, err := storage.NewSQLite(cfg.DataPaths.SQLitePath, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
}

// InitAlertCache connects the optional Redis alert cache. A connection
// failure is not fatal: the engine works against the store alone, so the
// cache is skipped with a warning.
func InitAlertCache(cfg *config.Config, sugar *zap.SugaredLogger) *storage.RedisCache {
	if !cfg.Redis.Enabled {
		return nil
	}

	cache := storage.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		sugar.Warnw("Redis unreachable, continuing without alert cache",
			"addr", cfg.Redis.Addr,
			"error", err)
		_ = cache.Close()
		return nil
	}

	sugar.Infof("Redis alert cache connected at %s", cfg.Redis.Addr)
	return cache
}
