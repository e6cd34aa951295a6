package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/suspicion"
	"github.com/devscan/linkguard/internal/urlnorm"
)

// fakeClassifier returns a fixed verdict per URL and counts calls. URLs
// containing failSubstring make the classification fail.
type fakeClassifier struct {
	verdicts      map[string]*Verdict
	failSubstring string
	calls         atomic.Int64
}

func (c *fakeClassifier) Classify(ctx context.Context, urls []string) ([]*Verdict, error) {
	c.calls.Add(1)
	out := make([]*Verdict, 0, len(urls))
	for _, url := range urls {
		if c.failSubstring != "" && strings.Contains(url, c.failSubstring) {
			return nil, errors.New("classifier unavailable")
		}
		if v, ok := c.verdicts[url]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, &Verdict{
			FinalVerdict:     VerdictSafe,
			ConfidenceScore:  "97%",
			AnomalyRiskLevel: RiskLow,
			CacheSource:      SourceMLService,
			LastScanned:      time.Now(),
		})
	}
	return out, nil
}

// fakeCache is a minimal VerdictCache keyed by exact URL with the same
// cacheability and expiry contract as the tiered cache.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*CacheEntry)}
}

func (c *fakeCache) Get(ctx context.Context, key string, variants []string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e, nil
	}
	for _, v := range variants {
		if e, ok := c.entries[v]; ok {
			return e, nil
		}
	}
	return nil, errors.New("not found")
}

func (c *fakeCache) Put(ctx context.Context, url string, v *Verdict) (*CacheEntry, error) {
	entry := EntryFromVerdict(url, v)
	if !v.FinalVerdict.Cacheable() {
		return entry, nil
	}
	entry.ExpiresAt = time.Now().Add(7 * 24 * time.Hour)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = entry
	return entry, nil
}

func (c *fakeCache) Sweep(ctx context.Context) (int64, error)             { return 0, nil }
func (c *fakeCache) PurgeNonCacheable(ctx context.Context) (int64, error) { return 0, nil }

// fakeWhitelist trusts a fixed set of domains, matched by substring against
// the URL host part the way the tests need it.
type fakeWhitelist struct {
	domains []string
}

func (w *fakeWhitelist) Check(url string) WhitelistMatch {
	for _, d := range w.domains {
		if strings.Contains(url, d) {
			return WhitelistMatch{Whitelisted: true, Domain: d, Source: "manual"}
		}
	}
	return WhitelistMatch{Source: "none"}
}

func newTestResolver(classifier Classifier, cache VerdictCache, trusted ...string) *Resolver {
	return NewResolver(
		classifier,
		cache,
		nil,
		&fakeWhitelist{domains: trusted},
		suspicion.NewDetector(),
		4,
		zap.NewNop(),
	)
}

func TestResolveWhitelistShortCircuit(t *testing.T) {
	classifier := &fakeClassifier{}
	r := newTestResolver(classifier, newFakeCache(), "wikipedia.org")

	res, err := r.Resolve(context.Background(), "https://wikipedia.org/wiki/Cats", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Whitelisted {
		t.Error("resolution should be marked whitelisted")
	}
	if res.Verdict.FinalVerdict != VerdictWhitelisted {
		t.Errorf("got verdict %q, want %q", res.Verdict.FinalVerdict, VerdictWhitelisted)
	}
	if res.Verdict.ConfidenceScore != "100%" {
		t.Errorf("got confidence %q, want 100%%", res.Verdict.ConfidenceScore)
	}
	if got := classifier.calls.Load(); got != 0 {
		t.Errorf("whitelisted URL must not reach the classifier, calls=%d", got)
	}
}

func TestResolveSuspicionOverridesWhitelist(t *testing.T) {
	url := "https://google.com/redirect?dest=http://evil"
	classifier := &fakeClassifier{verdicts: map[string]*Verdict{
		url: {
			FinalVerdict:     VerdictMalicious,
			ConfidenceScore:  "95%",
			AnomalyRiskLevel: RiskHigh,
			CacheSource:      SourceMLService,
			LastScanned:      time.Now(),
		},
	}}
	r := newTestResolver(classifier, newFakeCache(), "google.com")

	res, err := r.Resolve(context.Background(), url, 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Whitelisted {
		t.Error("suspicious URL must not short-circuit on the whitelist")
	}
	if res.Verdict.FinalVerdict != VerdictMalicious {
		t.Errorf("got verdict %q, want %q", res.Verdict.FinalVerdict, VerdictMalicious)
	}
	if got := classifier.calls.Load(); got != 1 {
		t.Errorf("suspicious URL should reach the classifier once, calls=%d", got)
	}
}

func TestResolveCachesVerdict(t *testing.T) {
	url := "https://example.com/a?b=login&c=verify"
	classifier := &fakeClassifier{verdicts: map[string]*Verdict{
		url: {
			FinalVerdict:     VerdictMalicious,
			ConfidenceScore:  "92%",
			AnomalyRiskLevel: RiskHigh,
			CacheSource:      SourceMLService,
			LastScanned:      time.Now(),
		},
	}}
	r := newTestResolver(classifier, newFakeCache())
	ctx := context.Background()

	res, err := r.Resolve(ctx, url, 0)
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if res.FromCache {
		t.Error("first resolution must not come from cache")
	}
	if res.Verdict.FinalVerdict != VerdictMalicious || res.Verdict.ConfidenceScore != "92%" {
		t.Errorf("unexpected verdict %+v", res.Verdict)
	}
	if res.Verdict.ExpiresAt.IsZero() {
		t.Error("cached verdict should carry the expiry from the store")
	}

	// The equivalent www form resolves from cache via the variant set.
	res, err = r.Resolve(ctx, "http://www.example.com/a?b=login&c=verify", 0)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if !res.FromCache {
		t.Error("second resolution should be a cache hit")
	}
	if res.Verdict.FinalVerdict != VerdictMalicious {
		t.Errorf("cache hit returned %q, want %q", res.Verdict.FinalVerdict, VerdictMalicious)
	}
	if got := classifier.calls.Load(); got != 1 {
		t.Errorf("cached URL must not be re-classified, calls=%d", got)
	}
}

func TestResolveScanFailureNotCached(t *testing.T) {
	classifier := &fakeClassifier{failSubstring: "flaky.example"}
	r := newTestResolver(classifier, newFakeCache())
	ctx := context.Background()
	url := "https://flaky.example/page"

	for i := 0; i < 2; i++ {
		res, err := r.Resolve(ctx, url, 0)
		if err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
		if res.Verdict.FinalVerdict != VerdictScanFailed {
			t.Fatalf("got verdict %q, want %q", res.Verdict.FinalVerdict, VerdictScanFailed)
		}
		if res.FromCache {
			t.Error("failed scans must never be served from cache")
		}
	}
	if got := classifier.calls.Load(); got != 2 {
		t.Errorf("failed verdict must be re-evaluated every time, calls=%d", got)
	}
}

func TestResolveManyIsolatesFailures(t *testing.T) {
	classifier := &fakeClassifier{failSubstring: "broken.example"}
	r := newTestResolver(classifier, newFakeCache())

	urls := []string{
		"https://good-one.example/a",
		"https://broken.example/b",
		"https://good-two.example/c",
	}
	result, err := r.ResolveMany(context.Background(), urls, 0, nil)
	if err != nil {
		t.Fatalf("ResolveMany: %v", err)
	}

	if len(result.Verdicts) != len(urls) {
		t.Fatalf("every input URL needs a verdict, got %d of %d", len(result.Verdicts), len(urls))
	}
	if v := result.Verdicts["https://broken.example/b"]; v.FinalVerdict != VerdictScanFailed {
		t.Errorf("failing URL got %q, want %q", v.FinalVerdict, VerdictScanFailed)
	}
	for _, url := range []string{urls[0], urls[2]} {
		if v := result.Verdicts[url]; v.FinalVerdict != VerdictSafe {
			t.Errorf("%s got %q, want %q", url, v.FinalVerdict, VerdictSafe)
		}
	}
	if result.NewCount != 3 || result.CachedCount != 0 {
		t.Errorf("counts new=%d cached=%d, want 3/0", result.NewCount, result.CachedCount)
	}
}

func TestResolveManyCounts(t *testing.T) {
	classifier := &fakeClassifier{}
	cache := newFakeCache()
	r := newTestResolver(classifier, cache, "wikipedia.org")
	ctx := context.Background()

	seen := "https://example.com/seen"
	if _, err := r.Resolve(ctx, seen, 0); err != nil {
		t.Fatal(err)
	}

	result, err := r.ResolveMany(ctx, []string{
		"https://wikipedia.org/wiki/Go",
		seen,
		"https://example.com/new",
	}, 0, nil)
	if err != nil {
		t.Fatalf("ResolveMany: %v", err)
	}
	if result.CachedCount != 2 {
		t.Errorf("cached count = %d, want 2 (whitelist hit plus cache hit)", result.CachedCount)
	}
	if result.NewCount != 1 {
		t.Errorf("new count = %d, want 1", result.NewCount)
	}
}

func TestResolveManyAlreadyProcessed(t *testing.T) {
	classifier := &fakeClassifier{}
	cache := newFakeCache()
	r := newTestResolver(classifier, cache)
	ctx := context.Background()

	url := "https://example.com/dup"
	if _, err := r.Resolve(ctx, url, 0); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := classifier.calls.Load()

	result, err := r.ResolveMany(ctx, []string{url}, 0, map[string]bool{url: true})
	if err != nil {
		t.Fatalf("ResolveMany: %v", err)
	}
	if v := result.Verdicts[url]; v == nil || v.FinalVerdict != VerdictSafe {
		t.Errorf("duplicate should answer from cache, got %+v", v)
	}
	if result.CachedCount != 1 || result.NewCount != 0 {
		t.Errorf("counts new=%d cached=%d, want 0/1", result.NewCount, result.CachedCount)
	}
	if got := classifier.calls.Load(); got != callsAfterFirst {
		t.Errorf("duplicate must not re-run the pipeline, calls went %d -> %d", callsAfterFirst, got)
	}
}

func TestResolveManyAlreadyProcessedWithoutCacheEntry(t *testing.T) {
	r := newTestResolver(&fakeClassifier{}, newFakeCache())

	url := "https://example.com/never-cached"
	result, err := r.ResolveMany(context.Background(), []string{url}, 0, map[string]bool{url: true})
	if err != nil {
		t.Fatalf("ResolveMany: %v", err)
	}
	v := result.Verdicts[url]
	if v == nil || v.FinalVerdict != VerdictUnknown {
		t.Errorf("uncached duplicate should resolve Unknown, got %+v", v)
	}
}

func TestResolveNormalizesCacheKey(t *testing.T) {
	classifier := &fakeClassifier{}
	cache := newFakeCache()
	r := newTestResolver(classifier, cache)
	ctx := context.Background()

	url := "http://WWW.Example.com/Path/"
	if _, err := r.Resolve(ctx, url, 0); err != nil {
		t.Fatal(err)
	}

	normalized := urlnorm.Normalize(url)
	cache.mu.Lock()
	_, ok := cache.entries[normalized]
	cache.mu.Unlock()
	if !ok {
		t.Errorf("verdict should be cached under the normalized URL %q", normalized)
	}
}
