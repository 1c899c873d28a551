package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the Cache contract with a Redis server.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a cache talking to the Redis server at address.
func NewRedisCache(address string) (*RedisCache, error) {
	if address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: address})
	return &RedisCache{client: client}, nil
}

// Get returns the stored value, translating an absent key into ErrMiss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrMiss, key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under key with the provided TTL.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes the entry; Redis DEL of an absent key already succeeds.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Close releases the underlying client connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
