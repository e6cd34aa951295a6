// Package cache implements the tiered verdict cache: a short-TTL in-process
// fast tier in front of a durable store, with an in-process fallback used
// when the store is unreachable.
package cache

import (
	"context"
	"errors"

	"github.com/devscan/linkguard/internal/core"
)

var (
	// ErrNotFound is returned when no cache entry matches.
	ErrNotFound = errors.New("cache entry not found")
	// ErrStoreUnavailable is returned when the durable store cannot be reached.
	ErrStoreUnavailable = errors.New("durable cache store unavailable")
)

// Backend is the durable-tier contract shared by the SQL and in-memory
// implementations.
type Backend interface {
	// Get returns the most recently scanned non-expired entry matching any
	// of the URL variants, or ErrNotFound.
	Get(ctx context.Context, variants []string) (*core.CacheEntry, error)

	// Put inserts the entry unless a non-expired entry with the same URL and
	// verdict already exists, in which case the existing entry is returned
	// with created=false.
	Put(ctx context.Context, entry *core.CacheEntry) (stored *core.CacheEntry, created bool, err error)

	// Sweep archives then deletes expired entries, returning the count.
	Sweep(ctx context.Context) (int64, error)

	// PurgeNonCacheable deletes entries whose verdict should never have
	// been persisted.
	PurgeNonCacheable(ctx context.Context) (int64, error)

	// Ping probes backend availability.
	Ping(ctx context.Context) error
}
