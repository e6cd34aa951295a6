// Package extract fetches a page and collects every outbound link candidate
// from it, for callers that want a whole page scanned at once.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// selectorAttrs maps CSS selectors to the attribute carrying a URL.
var selectorAttrs = map[string]string{
	"a[href]":         "href",
	"link[href]":      "href",
	"iframe[src]":     "src",
	"frame[src]":      "src",
	"script[src]":     "src",
	"form[action]":    "action",
	"button[onclick]": "onclick",
	"[data-href]":     "data-href",
}

var onclickURLPattern = regexp.MustCompile(`https?://[^\s'"]+`)

// Extractor fetches pages and extracts link candidates from their markup.
type Extractor struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewExtractor creates an extractor with a bounded fetch timeout.
func NewExtractor(userAgent string, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		logger:    logger,
	}
}

// ExtractLinks fetches the page and returns every absolute URL referenced by
// its anchors, frames, scripts and forms. Relative references are resolved
// against the page URL; values that cannot be resolved are skipped.
func (e *Extractor) ExtractLinks(ctx context.Context, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build page request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	for selector, attr := range selectorAttrs {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			value, ok := sel.Attr(attr)
			if !ok || value == "" {
				return
			}

			// onclick handlers carry URLs inside script text, not as a
			// plain reference.
			if attr == "onclick" {
				match := onclickURLPattern.FindString(value)
				if match == "" {
					return
				}
				value = match
			}

			ref, err := url.Parse(strings.TrimSpace(value))
			if err != nil {
				return
			}
			absolute := base.ResolveReference(ref).String()
			if !seen[absolute] {
				seen[absolute] = true
				links = append(links, absolute)
			}
		})
	}

	e.logger.Debug("Extracted page links",
		zap.String("page", pageURL),
		zap.Int("links", len(links)))
	return links, nil
}
