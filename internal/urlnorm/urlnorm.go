// Package urlnorm canonicalizes URLs into comparable cache keys and expands
// them into the equivalent forms a prior scan may have been stored under.
package urlnorm

import (
	"net/url"
	"sort"
	"strings"
)

// Normalize produces the canonical cache key for a URL: https scheme,
// lowercased host without a leading www., a single trailing slash stripped
// from non-root paths, query kept verbatim. Unparsable input degrades to a
// trimmed lowercase form and never fails.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(withScheme(raw))
	if err != nil || u.Hostname() == "" {
		return fallbackNormalize(raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	normalized := "https://" + host + path
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}
	return normalized
}

// Variants returns every equivalent representation of a URL that a cache
// lookup should match: {http,https} x {www,bare} x trailing-slash forms,
// plus the original input and the normalized key. The result is sorted and
// duplicate-free so lookups can treat it as a set.
func Variants(raw string) []string {
	raw = strings.TrimSpace(raw)
	set := map[string]struct{}{
		raw:            {},
		Normalize(raw): {},
	}

	u, err := url.Parse(withScheme(raw))
	if err != nil || u.Hostname() == "" {
		return sorted(set)
	}

	bare := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := u.EscapedPath()
	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}

	for _, scheme := range []string{"http", "https"} {
		for _, host := range []string{bare, "www." + bare} {
			base := scheme + "://" + host + path + search
			set[base] = struct{}{}

			if path != "/" && strings.HasSuffix(base, "/") {
				set[strings.TrimSuffix(base, "/")] = struct{}{}
			}
			if path == "" || (!strings.HasSuffix(base, "/") && search == "") {
				set[base+"/"] = struct{}{}
			}
		}
	}
	return sorted(set)
}

// withScheme defaults schemeless input to https.
func withScheme(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

func fallbackNormalize(raw string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), "/")
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
