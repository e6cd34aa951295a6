package core

import (
	"context"
)

// Classifier defines the interface for the remote scoring service.
type Classifier interface {
	// Classify analyzes a batch of URLs and returns one verdict per URL.
	Classify(ctx context.Context, urls []string) ([]*Verdict, error)
}

// VerdictCache defines the interface for the verdict cache consulted by the
// resolution pipeline.
type VerdictCache interface {
	// Get retrieves a cached entry for a URL, matching any of the given
	// equivalent variants. key is the requested URL used for fast-tier
	// lookups.
	Get(ctx context.Context, key string, variants []string) (*CacheEntry, error)

	// Put stores a verdict for a normalized URL. If a non-expired entry with
	// the same URL and verdict already exists it is returned instead of
	// creating a duplicate.
	Put(ctx context.Context, url string, v *Verdict) (*CacheEntry, error)

	// Sweep archives and removes expired entries, returning the count.
	Sweep(ctx context.Context) (int64, error)

	// PurgeNonCacheable removes entries whose verdict should never have
	// been written.
	PurgeNonCacheable(ctx context.Context) (int64, error)
}

// LinkStore defines the interface for session and scanned-link persistence.
// All of its operations are best-effort from the pipeline's point of view.
type LinkStore interface {
	// GetOrCreateSession returns a valid session ID, creating a session when
	// the given one is zero or unknown.
	GetOrCreateSession(ctx context.Context, sessionID int64, browserInfo string) (int64, error)

	// RecordScannedLink records a URL against a session for audit/history.
	// pageURL is the page the link was found on and may be empty.
	RecordScannedLink(ctx context.Context, sessionID int64, url, pageURL string) (int64, error)

	// ProcessedLinks returns the set of URLs already scanned for a page
	// within a session.
	ProcessedLinks(ctx context.Context, sessionID int64, pageURL string) (map[string]bool, error)
}

// WhitelistChecker reports whether a URL's domain is pre-trusted.
type WhitelistChecker interface {
	Check(url string) WhitelistMatch
}

// SuspicionChecker flags URLs whose structure looks like an attack even when
// the domain is trusted.
type SuspicionChecker interface {
	IsSuspicious(url string) bool
}
