package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

func testVerdict(kind core.VerdictKind) *core.Verdict {
	return &core.Verdict{
		FinalVerdict:     kind,
		ConfidenceScore:  "92%",
		AnomalyRiskLevel: core.RiskHigh,
		Explanation:      "test verdict",
		CacheSource:      core.SourceMLService,
		LastScanned:      time.Now(),
	}
}

// countingBackend wraps a MemoryCache and counts calls.
type countingBackend struct {
	*MemoryCache
	gets  int
	puts  int
	pings int
}

func (b *countingBackend) Get(ctx context.Context, variants []string) (*core.CacheEntry, error) {
	b.gets++
	return b.MemoryCache.Get(ctx, variants)
}

func (b *countingBackend) Put(ctx context.Context, entry *core.CacheEntry) (*core.CacheEntry, bool, error) {
	b.puts++
	return b.MemoryCache.Put(ctx, entry)
}

func (b *countingBackend) Ping(ctx context.Context) error {
	b.pings++
	return b.MemoryCache.Ping(ctx)
}

// brokenBackend fails every operation. Ping succeeds or fails per pingErr so
// both the probe path and the mid-flight failure path can be exercised.
type brokenBackend struct {
	pingErr error
	pings   int
}

func (b *brokenBackend) Get(ctx context.Context, variants []string) (*core.CacheEntry, error) {
	return nil, ErrStoreUnavailable
}

func (b *brokenBackend) Put(ctx context.Context, entry *core.CacheEntry) (*core.CacheEntry, bool, error) {
	return nil, false, ErrStoreUnavailable
}

func (b *brokenBackend) Sweep(ctx context.Context) (int64, error) {
	return 0, ErrStoreUnavailable
}

func (b *brokenBackend) PurgeNonCacheable(ctx context.Context) (int64, error) {
	return 0, ErrStoreUnavailable
}

func (b *brokenBackend) Ping(ctx context.Context) error {
	b.pings++
	return b.pingErr
}

func TestTieredPutGet(t *testing.T) {
	tiered := NewTiered(nil, TieredOptions{}, zap.NewNop())
	defer tiered.Stop()
	ctx := context.Background()

	url := "https://example.com/a"
	stored, err := tiered.Put(ctx, url, testVerdict(core.VerdictMalicious))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if stored.ExpiresAt.Before(time.Now().Add(6 * 24 * time.Hour)) {
		t.Errorf("stored entry should carry the durable TTL, got expiry %v", stored.ExpiresAt)
	}

	entry, err := tiered.Get(ctx, url, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.FinalVerdict != core.VerdictMalicious {
		t.Errorf("got verdict %q, want %q", entry.FinalVerdict, core.VerdictMalicious)
	}
}

func TestTieredGetViaVariants(t *testing.T) {
	tiered := NewTiered(nil, TieredOptions{FastTTL: time.Nanosecond}, zap.NewNop())
	defer tiered.Stop()
	ctx := context.Background()

	if _, err := tiered.Put(ctx, "https://example.com/a", testVerdict(core.VerdictSafe)); err != nil {
		t.Fatal(err)
	}

	// The fast tier is effectively disabled; the durable tier must answer a
	// lookup under a different requested form via the variant set.
	entry, err := tiered.Get(ctx, "http://www.example.com/a", []string{
		"http://www.example.com/a",
		"https://example.com/a",
	})
	if err != nil {
		t.Fatalf("Get via variants: %v", err)
	}
	if entry.FinalVerdict != core.VerdictSafe {
		t.Errorf("got verdict %q, want %q", entry.FinalVerdict, core.VerdictSafe)
	}
}

func TestTieredNonCacheableNotStored(t *testing.T) {
	tiered := NewTiered(nil, TieredOptions{}, zap.NewNop())
	defer tiered.Stop()
	ctx := context.Background()

	url := "https://example.com/failed"
	stored, err := tiered.Put(ctx, url, testVerdict(core.VerdictScanFailed))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if stored == nil {
		t.Fatal("Put should still return the unpersisted entry")
	}

	if _, err := tiered.Get(ctx, url, []string{url}); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-cacheable verdict must not be served from cache, got err=%v", err)
	}
}

func TestTieredFastTierRepopulatedFromDurable(t *testing.T) {
	durable := &countingBackend{MemoryCache: NewMemoryCache(zap.NewNop())}
	tiered := NewTiered(durable, TieredOptions{}, zap.NewNop())
	defer tiered.Stop()
	ctx := context.Background()

	url := "https://example.com/a"
	entry := testEntry(url, core.VerdictSafe, time.Hour)
	if _, _, err := durable.MemoryCache.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if _, err := tiered.Get(ctx, url, []string{url}); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if durable.gets != 1 {
		t.Fatalf("first Get should reach the durable tier, gets=%d", durable.gets)
	}

	// Second lookup is absorbed by the fast tier.
	if _, err := tiered.Get(ctx, url, nil); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if durable.gets != 1 {
		t.Errorf("second Get should be a fast-tier hit, gets=%d", durable.gets)
	}
}

func TestTieredProbeOnce(t *testing.T) {
	durable := &brokenBackend{pingErr: errors.New("connection refused")}
	tiered := NewTiered(durable, TieredOptions{}, zap.NewNop())
	defer tiered.Stop()
	ctx := context.Background()

	url := "https://example.com/a"
	if _, err := tiered.Put(ctx, url, testVerdict(core.VerdictSafe)); err != nil {
		t.Fatalf("Put with unreachable store: %v", err)
	}
	if _, err := tiered.Get(ctx, url, []string{url}); err != nil {
		t.Fatalf("Get with unreachable store: %v", err)
	}
	if _, err := tiered.Get(ctx, "https://example.com/other", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("miss expected, got %v", err)
	}

	if durable.pings != 1 {
		t.Errorf("availability should be probed once and latched, pings=%d", durable.pings)
	}
}

func TestTieredReprobe(t *testing.T) {
	durable := &brokenBackend{pingErr: errors.New("connection refused")}
	tiered := NewTiered(durable, TieredOptions{}, zap.NewNop())
	defer tiered.Stop()
	ctx := context.Background()

	tiered.Get(ctx, "https://example.com/a", nil)
	tiered.Reprobe()
	tiered.Get(ctx, "https://example.com/a", nil)

	if durable.pings != 2 {
		t.Errorf("Reprobe should force a fresh probe, pings=%d", durable.pings)
	}
}

func TestTieredDurableFailureMidFlight(t *testing.T) {
	// Ping succeeds so the durable tier is selected, then every operation
	// fails. Reads and writes must degrade to the memory fallback.
	durable := &brokenBackend{}
	tiered := NewTiered(durable, TieredOptions{FastTTL: time.Nanosecond}, zap.NewNop())
	defer tiered.Stop()
	ctx := context.Background()

	url := "https://example.com/a"
	if _, err := tiered.Put(ctx, url, testVerdict(core.VerdictMalicious)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entry, err := tiered.Get(ctx, url, []string{url})
	if err != nil {
		t.Fatalf("Get should fall back to memory: %v", err)
	}
	if entry.FinalVerdict != core.VerdictMalicious {
		t.Errorf("got verdict %q, want %q", entry.FinalVerdict, core.VerdictMalicious)
	}
}

func TestTieredSweep(t *testing.T) {
	durable := &countingBackend{MemoryCache: NewMemoryCache(zap.NewNop())}
	tiered := NewTiered(durable, TieredOptions{}, zap.NewNop())
	defer tiered.Stop()
	ctx := context.Background()

	if _, _, err := durable.MemoryCache.Put(ctx, testEntry("https://example.com/dead", core.VerdictSafe, -time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := durable.MemoryCache.Put(ctx, testEntry("https://example.com/live", core.VerdictSafe, time.Hour)); err != nil {
		t.Fatal(err)
	}

	removed, err := tiered.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("swept %d entries, want 1", removed)
	}
}
