package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vulntrack/api/internal/metrics"
)

// ConfigCache is the shared cache behind configuration distribution across
// replicas. It implements vulnconfig.CacheStore; a miss returns (nil, nil)
// so callers fall through to the database.
type ConfigCache struct {
	client *Client
}

// NewConfigCache creates a new ConfigCache.
func NewConfigCache(client *Client) (*ConfigCache, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &ConfigCache{client: client}, nil
}

// Get retrieves a cached value by key.
func (c *ConfigCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}

	data, err := c.client.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ConfigCacheReads.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	metrics.ConfigCacheReads.WithLabelValues("hit").Inc()
	return data, nil
}

// Set stores a value with the given TTL.
func (c *ConfigCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		return errors.New("TTL must be positive")
	}

	if err := c.client.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (c *ConfigCache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key is required")
	}

	if err := c.client.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
