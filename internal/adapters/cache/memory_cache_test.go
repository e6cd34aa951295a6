package cache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

func testEntry(url string, kind core.VerdictKind, ttl time.Duration) *core.CacheEntry {
	return &core.CacheEntry{
		URL:              url,
		FinalVerdict:     kind,
		ConfidenceScore:  "90%",
		AnomalyRiskLevel: core.RiskHigh,
		Explanation:      "test entry",
		CacheSource:      core.SourceMLService,
		LastScanned:      time.Now(),
		ExpiresAt:        time.Now().Add(ttl),
	}
}

func TestMemoryCacheRoundTripViaVariants(t *testing.T) {
	c := NewMemoryCache(zap.NewNop())
	ctx := context.Background()

	entry := testEntry("https://example.com/a", core.VerdictMalicious, time.Hour)
	if _, created, err := c.Put(ctx, entry); err != nil || !created {
		t.Fatalf("Put: created=%v err=%v", created, err)
	}

	variants := []string{
		"http://example.com/a",
		"http://www.example.com/a",
		"https://example.com/a",
		"https://www.example.com/a",
	}
	got, err := c.Get(ctx, variants)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FinalVerdict != core.VerdictMalicious {
		t.Errorf("got verdict %q, want %q", got.FinalVerdict, core.VerdictMalicious)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache(zap.NewNop())
	if _, err := c.Get(context.Background(), []string{"https://example.com/missing"}); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCacheDuplicateSuppression(t *testing.T) {
	c := NewMemoryCache(zap.NewNop())
	ctx := context.Background()

	first := testEntry("https://example.com/a", core.VerdictSafe, time.Hour)
	if _, created, err := c.Put(ctx, first); err != nil || !created {
		t.Fatalf("first Put: created=%v err=%v", created, err)
	}

	// Same URL, same verdict: suppressed.
	dup := testEntry("https://example.com/a", core.VerdictSafe, time.Hour)
	stored, created, err := c.Put(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate Put: %v", err)
	}
	if created {
		t.Error("duplicate entry should not create a new row")
	}
	if stored != first {
		t.Error("duplicate Put should return the existing entry")
	}

	// Same URL, different verdict: a new row.
	changed := testEntry("https://example.com/a", core.VerdictMalicious, time.Hour)
	if _, created, err := c.Put(ctx, changed); err != nil || !created {
		t.Errorf("changed verdict Put: created=%v err=%v", created, err)
	}
}

func TestMemoryCacheExpiredSuperseded(t *testing.T) {
	c := NewMemoryCache(zap.NewNop())
	ctx := context.Background()

	expired := testEntry("https://example.com/a", core.VerdictSafe, -time.Hour)
	if _, _, err := c.Put(ctx, expired); err != nil {
		t.Fatal(err)
	}

	// Expired entries do not satisfy reads.
	if _, err := c.Get(ctx, []string{"https://example.com/a"}); err != ErrNotFound {
		t.Errorf("expired entry should not be served, got err=%v", err)
	}

	// And do not suppress a fresh write of the same verdict.
	fresh := testEntry("https://example.com/a", core.VerdictSafe, time.Hour)
	if _, created, err := c.Put(ctx, fresh); err != nil || !created {
		t.Errorf("fresh Put over expired: created=%v err=%v", created, err)
	}
}

func TestMemoryCacheMostRecentWins(t *testing.T) {
	c := NewMemoryCache(zap.NewNop())
	ctx := context.Background()

	older := testEntry("https://example.com/a", core.VerdictSafe, time.Hour)
	older.LastScanned = time.Now().Add(-time.Hour)
	newer := testEntry("http://example.com/a", core.VerdictMalicious, time.Hour)

	if _, _, err := c.Put(ctx, older); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Put(ctx, newer); err != nil {
		t.Fatal(err)
	}

	got, err := c.Get(ctx, []string{"https://example.com/a", "http://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}
	if got.FinalVerdict != core.VerdictMalicious {
		t.Errorf("expected the most recently scanned entry, got %q", got.FinalVerdict)
	}
}

func TestMemoryCacheSweep(t *testing.T) {
	c := NewMemoryCache(zap.NewNop())
	ctx := context.Background()

	for _, e := range []*core.CacheEntry{
		testEntry("https://example.com/live", core.VerdictSafe, time.Hour),
		testEntry("https://example.com/dead1", core.VerdictSafe, -time.Minute),
		testEntry("https://example.com/dead2", core.VerdictMalicious, -time.Minute),
	} {
		if _, _, err := c.Put(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := c.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("swept %d entries, want 2", removed)
	}
	if _, err := c.Get(ctx, []string{"https://example.com/live"}); err != nil {
		t.Errorf("live entry should survive the sweep: %v", err)
	}
}

func TestMemoryCachePurgeNonCacheable(t *testing.T) {
	c := NewMemoryCache(zap.NewNop())
	ctx := context.Background()

	if _, _, err := c.Put(ctx, testEntry("https://example.com/a", core.VerdictSafe, time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Put(ctx, testEntry("https://example.com/b", core.VerdictScanFailed, time.Hour)); err != nil {
		t.Fatal(err)
	}

	removed, err := c.PurgeNonCacheable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("purged %d entries, want 1", removed)
	}
	if _, err := c.Get(ctx, []string{"https://example.com/a"}); err != nil {
		t.Errorf("cacheable entry should survive the purge: %v", err)
	}
	if _, err := c.Get(ctx, []string{"https://example.com/b"}); err != ErrNotFound {
		t.Errorf("non-cacheable entry should be gone, got err=%v", err)
	}
}
