package core

import (
	"time"
)

// VerdictKind is the final classification for a scanned URL.
type VerdictKind string

const (
	VerdictSafe        VerdictKind = "Safe"
	VerdictAnomalous   VerdictKind = "Anomalous"
	VerdictMalicious   VerdictKind = "Malicious"
	VerdictWhitelisted VerdictKind = "Whitelisted"
	VerdictScanFailed  VerdictKind = "Scan Failed"
	VerdictUnknown     VerdictKind = "Unknown"
)

// Cacheable reports whether a verdict of this kind may be written to the
// durable cache. Whitelisted and failed scans are never cached so the URL
// is re-evaluated on the next request.
func (k VerdictKind) Cacheable() bool {
	switch k {
	case VerdictSafe, VerdictAnomalous, VerdictMalicious:
		return true
	}
	return false
}

// Risk levels reported alongside a verdict.
const (
	RiskLow     = "Low"
	RiskMedium  = "Medium"
	RiskHigh    = "High"
	RiskUnknown = "Unknown"
)

// Cache source tags recorded on a verdict.
const (
	SourceMLService = "ml_service"
	SourceWhitelist = "whitelist"
	SourceCache     = "cache"
	SourceFallback  = "fallback"
)

// Verdict is the canonical analysis result for one URL.
type Verdict struct {
	FinalVerdict     VerdictKind `json:"final_verdict"`
	ConfidenceScore  string      `json:"confidence_score"`
	AnomalyRiskLevel string      `json:"anomaly_risk_level"`
	Explanation      string      `json:"explanation"`
	Tip              string      `json:"tip"`
	CacheSource      string      `json:"cacheSource"`
	LastScanned      time.Time   `json:"lastScanned"`
	ExpiresAt        time.Time   `json:"expiresAt,omitempty"`
}

// CacheEntry is a durable cache record keyed by normalized URL. LinkID is a
// legacy key kept for records written before URL keying existed.
type CacheEntry struct {
	URL              string
	LinkID           int64
	FinalVerdict     VerdictKind
	ConfidenceScore  string
	AnomalyRiskLevel string
	Explanation      string
	Tip              string
	CacheSource      string
	LastScanned      time.Time
	ExpiresAt        time.Time
}

// Verdict converts a cache entry back into a verdict.
func (e *CacheEntry) Verdict() *Verdict {
	return &Verdict{
		FinalVerdict:     e.FinalVerdict,
		ConfidenceScore:  e.ConfidenceScore,
		AnomalyRiskLevel: e.AnomalyRiskLevel,
		Explanation:      e.Explanation,
		Tip:              e.Tip,
		CacheSource:      e.CacheSource,
		LastScanned:      e.LastScanned,
		ExpiresAt:        e.ExpiresAt,
	}
}

// EntryFromVerdict builds a cache entry for a URL from a verdict.
func EntryFromVerdict(url string, v *Verdict) *CacheEntry {
	return &CacheEntry{
		URL:              url,
		FinalVerdict:     v.FinalVerdict,
		ConfidenceScore:  v.ConfidenceScore,
		AnomalyRiskLevel: v.AnomalyRiskLevel,
		Explanation:      v.Explanation,
		Tip:              v.Tip,
		CacheSource:      v.CacheSource,
		LastScanned:      v.LastScanned,
		ExpiresAt:        v.ExpiresAt,
	}
}

// WhitelistMatch describes the outcome of a whitelist lookup.
type WhitelistMatch struct {
	Whitelisted bool
	Domain      string
	Source      string // "manual", "ranked" or "none"
	Rank        string
}

// ScanSession groups one batch of extension activity.
type ScanSession struct {
	SessionID     int64
	BrowserInfo   string
	EngineVersion string
	Timestamp     time.Time
}

// ScannedLink records one URL submitted for scanning within a session.
type ScannedLink struct {
	LinkID        int64
	SessionID     int64
	URL           string
	ScanTimestamp time.Time
}

// Resolution is the result of resolving one URL through the pipeline.
type Resolution struct {
	Verdict     *Verdict
	FromCache   bool
	Whitelisted bool
}

// BatchResult is the outcome of resolving a batch of URLs. Every input URL
// has an entry in Verdicts, failed ones included.
type BatchResult struct {
	Verdicts    map[string]*Verdict
	NewCount    int
	CachedCount int
}
