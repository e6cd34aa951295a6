package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

type fastEntry struct {
	verdict  *core.Verdict
	storedAt time.Time
}

// FastCache is the short-TTL in-process tier keyed by requested URL. It
// exists to absorb bursts of lookups for the same URL without a durable
// store round trip.
type FastCache struct {
	mu      sync.RWMutex
	entries map[string]fastEntry
	ttl     time.Duration
	logger  *zap.Logger
}

// NewFastCache creates a fast tier with the given entry lifetime.
func NewFastCache(ttl time.Duration, logger *zap.Logger) *FastCache {
	return &FastCache{
		entries: make(map[string]fastEntry),
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the verdict cached under the URL, if present and fresh.
func (c *FastCache) Get(url string) (*core.Verdict, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[url]
	if !ok || time.Since(entry.storedAt) > c.ttl {
		return nil, false
	}
	return entry.verdict, true
}

// Set stores a verdict under the URL.
func (c *FastCache) Set(url string, v *core.Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = fastEntry{verdict: v, storedAt: time.Now()}
}

// Cleanup drops stale entries and returns how many were removed.
func (c *FastCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for url, entry := range c.entries {
		if time.Since(entry.storedAt) > c.ttl {
			delete(c.entries, url)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("Cleaned up fast cache tier", zap.Int("removed", removed))
	}
	return removed
}

// PurgeNonCacheable drops entries carrying verdicts that should never have
// been cached.
func (c *FastCache) PurgeNonCacheable() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for url, entry := range c.entries {
		if !entry.verdict.FinalVerdict.Cacheable() {
			delete(c.entries, url)
			removed++
		}
	}
	return removed
}
