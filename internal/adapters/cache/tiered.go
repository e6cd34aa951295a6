package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

// Tiered is the two-level verdict cache consulted by the resolution
// pipeline: a short-TTL fast tier in front of a durable backend, with an
// in-process fallback backend used when the durable store is unreachable.
// Durable availability is probed once and latched for the process lifetime.
type Tiered struct {
	fast     *FastCache
	durable  Backend
	fallback *MemoryCache
	logger   *zap.Logger

	entryTTL  time.Duration
	sweepFreq time.Duration

	probeMu   sync.Mutex
	probed    bool
	available bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// TieredOptions configures the tiered cache.
type TieredOptions struct {
	// FastTTL bounds fast-tier entries. Default 10 minutes.
	FastTTL time.Duration
	// EntryTTL is the durable validity window. Default 7 days.
	EntryTTL time.Duration
	// SweepFrequency drives the background sweep. Default 1 hour.
	SweepFrequency time.Duration
}

// NewTiered creates a tiered cache over the given durable backend. durable
// may be nil for purely in-process deployments.
func NewTiered(durable Backend, opts TieredOptions, logger *zap.Logger) *Tiered {
	if opts.FastTTL <= 0 {
		opts.FastTTL = 10 * time.Minute
	}
	if opts.EntryTTL <= 0 {
		opts.EntryTTL = 7 * 24 * time.Hour
	}
	if opts.SweepFrequency <= 0 {
		opts.SweepFrequency = time.Hour
	}

	t := &Tiered{
		fast:      NewFastCache(opts.FastTTL, logger),
		durable:   durable,
		fallback:  NewMemoryCache(logger),
		logger:    logger,
		entryTTL:  opts.EntryTTL,
		sweepFreq: opts.SweepFrequency,
		stopCh:    make(chan struct{}),
	}
	go t.startSweepTask()
	return t
}

// Get consults the fast tier by key and every variant, then the durable
// tier by the variant set. A durable hit repopulates the fast tier. Durable
// failures degrade to the fallback backend and are never surfaced.
func (t *Tiered) Get(ctx context.Context, key string, variants []string) (*core.CacheEntry, error) {
	if v, ok := t.fast.Get(key); ok {
		return core.EntryFromVerdict(key, v), nil
	}
	for _, variant := range variants {
		if v, ok := t.fast.Get(variant); ok {
			return core.EntryFromVerdict(variant, v), nil
		}
	}

	entry, err := t.backend(ctx).Get(ctx, variants)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		t.logger.Warn("Durable cache read failed, falling back to memory",
			zap.String("url", key),
			zap.Error(err))
		entry, err = t.fallback.Get(ctx, variants)
		if err != nil {
			return nil, ErrNotFound
		}
	}

	t.fast.Set(key, entry.Verdict())
	return entry, nil
}

// Put stores a verdict for a normalized URL. Cacheable verdicts go to the
// fast tier and the durable tier with a fresh expiry. Non-cacheable verdicts
// are returned unpersisted so the URL is re-evaluated next time.
func (t *Tiered) Put(ctx context.Context, url string, v *core.Verdict) (*core.CacheEntry, error) {
	if !v.FinalVerdict.Cacheable() {
		t.logger.Debug("Skipping cache for non-cacheable verdict",
			zap.String("url", url),
			zap.String("verdict", string(v.FinalVerdict)))
		return core.EntryFromVerdict(url, v), nil
	}
	t.fast.Set(url, v)

	entry := core.EntryFromVerdict(url, v)
	if entry.LastScanned.IsZero() {
		entry.LastScanned = time.Now()
	}
	entry.ExpiresAt = time.Now().Add(t.entryTTL)

	stored, created, err := t.backend(ctx).Put(ctx, entry)
	if err != nil {
		t.logger.Warn("Durable cache write failed, falling back to memory",
			zap.String("url", url),
			zap.Error(err))
		stored, created, err = t.fallback.Put(ctx, entry)
		if err != nil {
			return entry, nil
		}
	}
	if !created {
		t.fast.Set(url, stored.Verdict())
	}
	return stored, nil
}

// Sweep archives and removes expired entries across all tiers.
func (t *Tiered) Sweep(ctx context.Context) (int64, error) {
	t.fast.Cleanup()
	fallbackRemoved, _ := t.fallback.Sweep(ctx)

	removed, err := t.backend(ctx).Sweep(ctx)
	if err != nil {
		t.logger.Warn("Durable cache sweep failed", zap.Error(err))
		return fallbackRemoved, nil
	}
	return removed + fallbackRemoved, nil
}

// PurgeNonCacheable removes entries that should never have been written,
// across all tiers.
func (t *Tiered) PurgeNonCacheable(ctx context.Context) (int64, error) {
	t.fast.PurgeNonCacheable()
	fallbackRemoved, _ := t.fallback.PurgeNonCacheable(ctx)

	removed, err := t.backend(ctx).PurgeNonCacheable(ctx)
	if err != nil {
		t.logger.Warn("Durable cache purge failed", zap.Error(err))
		return fallbackRemoved, nil
	}
	return removed + fallbackRemoved, nil
}

// Reprobe clears the latched availability result so the next operation
// probes the durable store again. Operator hook; nothing calls this
// automatically.
func (t *Tiered) Reprobe() {
	t.probeMu.Lock()
	defer t.probeMu.Unlock()
	t.probed = false
}

// Stop halts the background sweep.
func (t *Tiered) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// backend returns the durable backend when it is configured and reachable,
// otherwise the in-process fallback. The reachability probe runs once and
// the answer is latched to avoid paying connection-failure latency on every
// call.
func (t *Tiered) backend(ctx context.Context) Backend {
	if t.durable == nil {
		return t.fallback
	}

	t.probeMu.Lock()
	defer t.probeMu.Unlock()

	if !t.probed {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := t.durable.Ping(probeCtx)
		cancel()
		t.probed = true
		t.available = err == nil
		if err != nil {
			t.logger.Warn("Durable cache store unavailable, using memory fallback",
				zap.Error(err))
		}
	}

	if t.available {
		return t.durable
	}
	return t.fallback
}

func (t *Tiered) startSweepTask() {
	ticker := time.NewTicker(t.sweepFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := t.Sweep(context.Background()); err != nil {
				t.logger.Error("Failed to sweep cache", zap.Error(err))
			}
		case <-t.stopCh:
			return
		}
	}
}
