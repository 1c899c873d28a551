package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	deadline time.Time
}

// MemoryCacheConfig configures the in-process cache.
type MemoryCacheConfig struct {
	Clock func() time.Time
}

// MemoryCache is a mutex-guarded in-process Cache with lazy expiry. It is
// used when no Redis address is configured and by tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

// NewMemoryCache constructs an empty in-process cache.
func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

// Get returns the stored value or ErrMiss when absent or expired.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMiss, key)
	}
	if !c.clock().Before(entry.deadline) {
		delete(c.entries, key)
		return "", fmt.Errorf("%w: %s", ErrMiss, key)
	}
	return entry.value, nil
}

// Set stores value under key, resetting the TTL.
func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, deadline: c.clock().Add(ttl)}
	return nil
}

// Delete removes the entry if present.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
