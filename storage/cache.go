package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"argus/core"
	"argus/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache keys for the alert read-through cache
const (
	cacheKeyAlertPrefix = "alert:"
)

// AlertCacheTTL bounds staleness of cached alert records
const AlertCacheTTL = 5 * time.Minute

// RedisCache is a write-through/read-through cache in front of an
// AlertStore, for deployments where the UI polls alerts aggressively.
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	return &RedisCache{client: client, logger: logger}
}

// Ping tests the Redis connection
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// SetAlert caches an alert record
func (rc *RedisCache) SetAlert(ctx context.Context, alertID string, alert interface{}) error {
	data, err := json.Marshal(alert)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return fmt.Errorf("failed to marshal cached alert %s: %w", alertID, err)
	}
	if err := rc.client.Set(ctx, cacheKeyAlertPrefix+alertID, data, AlertCacheTTL).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
		return err
	}
	return nil
}

// GetAlert retrieves a cached alert into dest; the bool reports a hit
func (rc *RedisCache) GetAlert(ctx context.Context, alertID string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, cacheKeyAlertPrefix+alertID).Result()
	if err != nil {
		if err == redis.Nil {
			metrics.CacheMisses.WithLabelValues("redis").Inc()
			return false, nil
		}
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		return false, err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return false, err
	}
	metrics.CacheHits.WithLabelValues("redis").Inc()
	return true, nil
}

// DeleteAlert drops a cached alert
func (rc *RedisCache) DeleteAlert(ctx context.Context, alertID string) error {
	return rc.client.Del(ctx, cacheKeyAlertPrefix+alertID).Err()
}

// CachedAlertStore wraps an AlertStore with the Redis cache. Writes go
// through to the store and refresh the cache best-effort; reads try the
// cache first. Cache failures degrade to the store, never to an error.
type CachedAlertStore struct {
	AlertStore
	cache  *RedisCache
	logger *zap.SugaredLogger
}

// NewCachedAlertStore wraps store with cache
func NewCachedAlertStore(store AlertStore, cache *RedisCache, logger *zap.SugaredLogger) *CachedAlertStore {
	return &CachedAlertStore{AlertStore: store, cache: cache, logger: logger}
}

// InsertAlert persists then caches the alert
func (c *CachedAlertStore) InsertAlert(ctx context.Context, alert *core.Alert) error {
	if err := c.AlertStore.InsertAlert(ctx, alert); err != nil {
		return err
	}
	if err := c.cache.SetAlert(ctx, alert.AlertID, alert); err != nil {
		c.logger.Debugw("Failed to cache alert on insert", "alert_id", alert.AlertID, "error", err)
	}
	return nil
}

// UpdateAlert persists then refreshes the cached record
func (c *CachedAlertStore) UpdateAlert(ctx context.Context, alert *core.Alert) error {
	if err := c.AlertStore.UpdateAlert(ctx, alert); err != nil {
		return err
	}
	if err := c.cache.SetAlert(ctx, alert.AlertID, alert); err != nil {
		c.logger.Debugw("Failed to cache alert on update", "alert_id", alert.AlertID, "error", err)
	}
	return nil
}

// GetAlert tries the cache before the store
func (c *CachedAlertStore) GetAlert(ctx context.Context, alertID string) (*core.Alert, error) {
	var cached core.Alert
	hit, err := c.cache.GetAlert(ctx, alertID, &cached)
	if err != nil {
		c.logger.Debugw("Alert cache read failed, falling through", "alert_id", alertID, "error", err)
	}
	if hit {
		return &cached, nil
	}

	alert, err := c.AlertStore.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetAlert(ctx, alertID, alert); err != nil {
		c.logger.Debugw("Failed to backfill alert cache", "alert_id", alertID, "error", err)
	}
	return alert, nil
}
