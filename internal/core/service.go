package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devscan/linkguard/internal/urlnorm"
)

// Resolver runs the per-URL verdict resolution pipeline: whitelist check
// with a suspicion override, tiered cache lookup, remote classification,
// conditional cache write. Checks run strictly cheapest-first; the remote
// classifier is the last resort.
type Resolver struct {
	classifier     Classifier
	cache          VerdictCache
	store          LinkStore
	whitelist      WhitelistChecker
	suspicion      SuspicionChecker
	logger         *zap.Logger
	maxConcurrency int
}

// NewResolver creates a resolver. store may be nil when link persistence is
// disabled.
func NewResolver(
	classifier Classifier,
	cache VerdictCache,
	store LinkStore,
	whitelist WhitelistChecker,
	suspicion SuspicionChecker,
	maxConcurrency int,
	logger *zap.Logger,
) *Resolver {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &Resolver{
		classifier:     classifier,
		cache:          cache,
		store:          store,
		whitelist:      whitelist,
		suspicion:      suspicion,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Resolve produces a verdict for one URL. Failures in individual steps are
// absorbed with conservative defaults; the only verdict-level failure mode
// is a Scan Failed verdict, never an error for a syntactically present URL.
func (r *Resolver) Resolve(ctx context.Context, url string, sessionID int64) (*Resolution, error) {
	r.recordLink(ctx, sessionID, url, "")

	// Whitelist first: near-zero cost and resolves most traffic. A trusted
	// domain does not short-circuit when the URL itself encodes attack-like
	// structure.
	match := r.checkWhitelist(url)
	if match.Whitelisted {
		if !r.suspicion.IsSuspicious(url) {
			r.logger.Debug("Whitelist short-circuit",
				zap.String("url", url),
				zap.String("domain", match.Domain),
				zap.String("source", match.Source))
			return &Resolution{
				Verdict:     whitelistedVerdict(match),
				Whitelisted: true,
			}, nil
		}
		r.logger.Info("Suspicious pattern overrides whitelist trust",
			zap.String("url", url),
			zap.String("domain", match.Domain))
	}

	variants := urlnorm.Variants(url)
	if entry, err := r.cache.Get(ctx, url, variants); err == nil && entry != nil {
		r.logger.Debug("Cache hit", zap.String("url", url))
		return &Resolution{Verdict: entry.Verdict(), FromCache: true}, nil
	}

	verdict := r.classify(ctx, url)

	if verdict.FinalVerdict.Cacheable() {
		normalized := urlnorm.Normalize(url)
		if stored, err := r.cache.Put(ctx, normalized, verdict); err != nil {
			r.logger.Warn("Cache write failed", zap.String("url", url), zap.Error(err))
		} else if stored != nil {
			verdict.ExpiresAt = stored.ExpiresAt
		}
	}

	return &Resolution{Verdict: verdict}, nil
}

// ResolveMany resolves a batch of URLs concurrently. Per-URL ordering is
// preserved inside each resolution; across the batch, one URL's failure
// never affects the others and every input URL gets an outcome.
func (r *Resolver) ResolveMany(ctx context.Context, urls []string, sessionID int64, alreadyProcessed map[string]bool) (*BatchResult, error) {
	batchID := uuid.NewString()
	result := &BatchResult{Verdicts: make(map[string]*Verdict, len(urls))}

	type outcome struct {
		url        string
		resolution *Resolution
	}
	outcomes := make([]outcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i, url := range urls {
		if alreadyProcessed[url] {
			// Seen on this page already: answer from cache without
			// re-running the pipeline.
			outcomes[i] = outcome{url: url, resolution: r.cachedOnly(ctx, url)}
			continue
		}
		i, url := i, url
		g.Go(func() error {
			res, err := r.Resolve(gctx, url, sessionID)
			if err != nil {
				r.logger.Warn("Resolution failed",
					zap.String("batch_id", batchID),
					zap.String("url", url),
					zap.Error(err))
				res = &Resolution{Verdict: scanFailedVerdict()}
			}
			outcomes[i] = outcome{url: url, resolution: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		if o.url == "" {
			continue
		}
		result.Verdicts[o.url] = o.resolution.Verdict
		if o.resolution.FromCache || o.resolution.Whitelisted || alreadyProcessed[o.url] {
			result.CachedCount++
		} else {
			result.NewCount++
		}
	}

	r.logger.Info("Batch resolved",
		zap.String("batch_id", batchID),
		zap.Int("urls", len(urls)),
		zap.Int("new", result.NewCount),
		zap.Int("cached", result.CachedCount))
	return result, nil
}

// ProcessedLinks returns the URLs already scanned for a page within a
// session, or an empty set when the store is absent or failing.
func (r *Resolver) ProcessedLinks(ctx context.Context, sessionID int64, pageURL string) map[string]bool {
	if r.store == nil || sessionID == 0 {
		return map[string]bool{}
	}
	processed, err := r.store.ProcessedLinks(ctx, sessionID, pageURL)
	if err != nil {
		r.logger.Warn("Failed to load processed links",
			zap.Int64("session_id", sessionID),
			zap.Error(err))
		return map[string]bool{}
	}
	return processed
}

// cachedOnly answers a duplicate URL from the cache alone.
func (r *Resolver) cachedOnly(ctx context.Context, url string) *Resolution {
	if entry, err := r.cache.Get(ctx, url, urlnorm.Variants(url)); err == nil && entry != nil {
		return &Resolution{Verdict: entry.Verdict(), FromCache: true}
	}
	return &Resolution{
		Verdict: &Verdict{
			FinalVerdict:     VerdictUnknown,
			ConfidenceScore:  "0%",
			AnomalyRiskLevel: RiskUnknown,
			Explanation:      "Link already processed in this session",
			CacheSource:      SourceCache,
			LastScanned:      time.Now(),
		},
		FromCache: true,
	}
}

// recordLink best-effort audit write; failure is logged, never fatal.
func (r *Resolver) recordLink(ctx context.Context, sessionID int64, url, pageURL string) {
	if r.store == nil || sessionID == 0 {
		return
	}
	if _, err := r.store.RecordScannedLink(ctx, sessionID, url, pageURL); err != nil {
		r.logger.Warn("Failed to record scanned link",
			zap.Int64("session_id", sessionID),
			zap.String("url", url),
			zap.Error(err))
	}
}

// checkWhitelist treats an absent checker as not-whitelisted.
func (r *Resolver) checkWhitelist(url string) WhitelistMatch {
	if r.whitelist == nil {
		return WhitelistMatch{}
	}
	return r.whitelist.Check(url)
}

// classify calls the remote classifier and converts every failure mode into
// a Scan Failed verdict.
func (r *Resolver) classify(ctx context.Context, url string) *Verdict {
	verdicts, err := r.classifier.Classify(ctx, []string{url})
	if err != nil || len(verdicts) == 0 || verdicts[0] == nil {
		r.logger.Warn("Classification failed", zap.String("url", url), zap.Error(err))
		return scanFailedVerdict()
	}
	return verdicts[0]
}

func whitelistedVerdict(match WhitelistMatch) *Verdict {
	return &Verdict{
		FinalVerdict:     VerdictWhitelisted,
		ConfidenceScore:  "100%",
		AnomalyRiskLevel: RiskLow,
		Explanation:      "Domain " + match.Domain + " is a trusted domain (" + match.Source + " whitelist)",
		Tip:              "This link points to a well-known trusted website.",
		CacheSource:      SourceWhitelist,
		LastScanned:      time.Now(),
	}
}

func scanFailedVerdict() *Verdict {
	return &Verdict{
		FinalVerdict:     VerdictScanFailed,
		ConfidenceScore:  "0%",
		AnomalyRiskLevel: RiskUnknown,
		Explanation:      "Scanning service temporarily unavailable. The link could not be analyzed.",
		Tip:              "Try again later or open the link only if you trust the source.",
		CacheSource:      SourceFallback,
		LastScanned:      time.Now(),
	}
}
