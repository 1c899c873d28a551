// Package cache provides the TTL key-value store backing list reads.
// Entries are never authoritative; every value can be rebuilt from the
// record store, so a miss means "recompute", not a fault.
package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is applied when Set receives a non-positive ttl.
const DefaultTTL = 3600 * time.Second

// ErrMiss indicates the requested key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Cache is a single-node, last-write-wins key-value store with per-entry TTL.
type Cache interface {
	// Get returns the stored value, or an error wrapping ErrMiss when the
	// key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, overwriting any prior value and resetting
	// the TTL. A non-positive ttl falls back to DefaultTTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes the entry; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// NotesKey names the cache entry holding the note list visible to a subject.
func NotesKey(subjectID string) string {
	return "notes:" + subjectID
}
