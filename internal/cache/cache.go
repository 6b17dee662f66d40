// Package cache provides the key/value store with per-entry expiration used by
// the rate limiter and the deduplication stage. Backends never return an
// error to callers: a broken backend behaves like an always-empty cache.
package cache

import (
	"context"
	"time"
)

// NoExpiration stores a value that never expires.
const NoExpiration time.Duration = 0

// Cache is the contract every backend implements.
type Cache interface {
	// Has reports whether a live (non-expired) entry exists for key.
	Has(ctx context.Context, key string) bool

	// Get returns the stored value, or def when the key is absent or expired.
	Get(ctx context.Context, key string, def []byte) []byte

	// Set stores value under key. ttl <= 0 means no expiration.
	// Returns false if the value could not be stored.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
}

// Collector is implemented by backends that need an explicit sweep to delete
// expired entries.
type Collector interface {
	CollectGarbage(ctx context.Context) (int, error)
}

// expiresAt converts a ttl into an absolute expiry. nil means never.
func expiresAt(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}

// expired reports whether an entry with the given expiry is dead at now.
func expired(exp *time.Time, now time.Time) bool {
	return exp != nil && !exp.After(now)
}
