// Package unshorten expands shortened URLs by following redirects to their
// final destination.
package unshorten

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Expander resolves a shortened URL to the address it ultimately redirects
// to.
type Expander struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewExpander creates an expander with a bounded timeout.
func NewExpander(userAgent string, logger *zap.Logger) *Expander {
	return &Expander{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Expand follows redirects and returns the final URL.
func (e *Expander) Expand(ctx context.Context, shortURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to resolve URL: %w", err)
	}
	defer resp.Body.Close()

	final := resp.Request.URL.String()
	if final != shortURL {
		e.logger.Debug("Expanded shortened URL",
			zap.String("from", shortURL),
			zap.String("to", final))
	}
	return final, nil
}
