package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

// MemoryCache is an in-process implementation of the durable Backend. It
// serves two roles: the fallback tier when the real store is unreachable,
// and the whole durable tier for store-less deployments and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]*core.CacheEntry
	logger  *zap.Logger
}

// NewMemoryCache creates an empty in-memory backend.
func NewMemoryCache(logger *zap.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string][]*core.CacheEntry),
		logger:  logger,
	}
}

// Get returns the most recently scanned non-expired entry matching any
// variant.
func (c *MemoryCache) Get(ctx context.Context, variants []string) (*core.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var best *core.CacheEntry
	for _, url := range variants {
		for _, entry := range c.entries[url] {
			if !entry.ExpiresAt.After(now) {
				continue
			}
			if best == nil || entry.LastScanned.After(best.LastScanned) {
				best = entry
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// Put stores the entry unless a non-expired entry with the same URL and
// verdict exists.
func (c *MemoryCache) Put(ctx context.Context, entry *core.CacheEntry) (*core.CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, existing := range c.entries[entry.URL] {
		if existing.FinalVerdict == entry.FinalVerdict && existing.ExpiresAt.After(now) {
			return existing, false, nil
		}
	}
	c.entries[entry.URL] = append(c.entries[entry.URL], entry)
	return entry, true, nil
}

// Sweep removes expired entries. There is no archive for the in-memory
// backend; the removed entries are simply dropped.
func (c *MemoryCache) Sweep(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var removed int64
	for url, entries := range c.entries {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.ExpiresAt.After(now) {
				kept = append(kept, entry)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(c.entries, url)
		} else {
			c.entries[url] = kept
		}
	}
	if removed > 0 {
		c.logger.Debug("Swept expired cache entries", zap.Int64("removed", removed))
	}
	return removed, nil
}

// PurgeNonCacheable removes entries with non-cacheable verdicts.
func (c *MemoryCache) PurgeNonCacheable(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	for url, entries := range c.entries {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.FinalVerdict.Cacheable() {
				kept = append(kept, entry)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(c.entries, url)
		} else {
			c.entries[url] = kept
		}
	}
	return removed, nil
}

// Ping always succeeds for the in-memory backend.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}
