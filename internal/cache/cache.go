package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/metrics"
)

// ErrUnavailable reports a failed cache operation. The concurrency
// controller depends on the cache for correctness, so callers must not
// fall back to unsynchronized behavior when they see it.
var ErrUnavailable = errors.New("cache unavailable")

// Cache is the shared cache collaborator backed by Redis. A Redis miss
// is reported via the found flag, never as an error.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a cache backed by the given Redis address.
func New(addr, password string, db int, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client, logger: logger}, nil
}

// NewWithClient wraps an existing client; used by tests with miniredis.
func NewWithClient(client *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Get returns the value for key. found is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		metrics.CacheErrors.Inc()
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return "", false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return val, true, nil
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		metrics.CacheErrors.Inc()
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// SetNX atomically stores value under key only if the key does not
// already exist. Returns true if the write won.
func (c *Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		metrics.CacheErrors.Inc()
		c.logger.Error("Cache setnx failed", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("%w: setnx %s: %v", ErrUnavailable, key, err)
	}
	return ok, nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		metrics.CacheErrors.Inc()
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
