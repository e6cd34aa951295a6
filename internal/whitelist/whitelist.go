// Package whitelist maintains the in-memory index of pre-trusted domains:
// a manually curated allow-list plus the top slice of a ranked domain
// dataset loaded at startup.
package whitelist

import (
	"context"
	"encoding/csv"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/devscan/linkguard/internal/core"
)

// Match sources.
const (
	SourceManual = "manual"
	SourceRanked = "ranked"
	SourceNone   = "none"
)

// Index answers O(1) membership checks against the manual and ranked domain
// sets. The ranked set is built once by LoadRanked and read-only afterwards.
type Index struct {
	manual     map[string]struct{}
	ranked     atomic.Pointer[map[string]struct{}]
	cutoffRank int
	logger     *zap.Logger
}

// NewIndex creates an index with the given manual allow-list. The ranked set
// is empty until LoadRanked completes.
func NewIndex(manualDomains []string, cutoffRank int, logger *zap.Logger) *Index {
	manual := make(map[string]struct{}, len(manualDomains))
	for _, d := range manualDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			manual[d] = struct{}{}
		}
	}

	idx := &Index{
		manual:     manual,
		cutoffRank: cutoffRank,
		logger:     logger,
	}
	empty := map[string]struct{}{}
	idx.ranked.Store(&empty)
	return idx
}

// LoadRanked streams a (rank,domain) CSV and retains domains ranked at or
// above the cutoff. A load failure leaves the index empty; the process keeps
// running with whatever was loaded.
func (i *Index) LoadRanked(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		i.logger.Warn("Ranked domain dataset unavailable, whitelist runs empty",
			zap.String("path", path),
			zap.Error(err))
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	ranked := make(map[string]struct{}, i.cutoffRank)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			i.logger.Warn("Skipping malformed ranking row", zap.Error(err))
			continue
		}
		if len(record) < 2 {
			continue
		}
		rank, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil || rank < 1 || rank > i.cutoffRank {
			continue
		}
		domain := strings.ToLower(strings.TrimSpace(record[1]))
		if domain == "" {
			continue
		}
		ranked[domain] = struct{}{}
		count++
	}

	i.ranked.Store(&ranked)
	i.logger.Info("Loaded ranked domain whitelist",
		zap.Int("domains", count),
		zap.Int("cutoff_rank", i.cutoffRank))
	return nil
}

// Check reports whether the URL's domain is pre-trusted and where the trust
// comes from. Unparsable URLs are simply not whitelisted.
func (i *Index) Check(raw string) core.WhitelistMatch {
	domain := extractDomain(raw)
	if domain == "" {
		return core.WhitelistMatch{Whitelisted: false, Source: SourceNone}
	}

	if _, ok := i.manual[domain]; ok {
		return core.WhitelistMatch{
			Whitelisted: true,
			Domain:      domain,
			Source:      SourceManual,
		}
	}

	ranked := *i.ranked.Load()
	if _, ok := ranked[domain]; ok {
		return core.WhitelistMatch{
			Whitelisted: true,
			Domain:      domain,
			Source:      SourceRanked,
			Rank:        "1-" + strconv.Itoa(i.cutoffRank),
		}
	}

	// A subdomain of a ranked domain counts: docs.example.com matches a
	// ranked example.com via its registrable domain.
	if etld, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil && etld != domain {
		if _, ok := i.manual[etld]; ok {
			return core.WhitelistMatch{
				Whitelisted: true,
				Domain:      etld,
				Source:      SourceManual,
			}
		}
		if _, ok := ranked[etld]; ok {
			return core.WhitelistMatch{
				Whitelisted: true,
				Domain:      etld,
				Source:      SourceRanked,
				Rank:        "1-" + strconv.Itoa(i.cutoffRank),
			}
		}
	}

	return core.WhitelistMatch{Whitelisted: false, Domain: domain, Source: SourceNone}
}

// extractDomain parses a URL and returns its lowercased host with any
// leading www. stripped, or "" when the URL cannot be parsed.
func extractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
