// Package bridge implements the Classifier port against the ML bridge API,
// a JSON-over-HTTP scoring service.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

// ErrDefinitive marks a server-side request/code failure. Retrying such a
// failure cannot help, so it short-circuits the retry loop.
var ErrDefinitive = errors.New("definitive classifier error")

// Options configures the bridge client.
type Options struct {
	// Endpoint is the analyze URL of the bridge API.
	Endpoint string
	// Timeout bounds one classify call. Default 120s; remote analysis is
	// heavyweight.
	Timeout time.Duration
	// Attempts is the total number of tries per batch. Default 2.
	Attempts int
	// RetryDelay is the fixed pause between attempts. Default 2s.
	RetryDelay time.Duration
}

// Client is a retrying gateway around the remote ML scoring endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	attempts   int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewClient creates a bridge classifier client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Client{
		endpoint:   opts.Endpoint,
		httpClient: &http.Client{Timeout: opts.Timeout},
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		logger:     logger,
	}
}

type classifyRequest struct {
	URLs []string `json:"urls"`
}

type classifyResponse struct {
	Results []wireResult `json:"results"`
}

// wireResult is the bridge API's verdict shape. It is adapted to the
// canonical Verdict here and nowhere else.
type wireResult struct {
	URL              string          `json:"url"`
	FinalVerdict     string          `json:"final_verdict"`
	ConfidenceScore  string          `json:"confidence_score"`
	AnomalyRiskLevel string          `json:"anomaly_risk_level"`
	Explanation      string          `json:"explanation"`
	Tip              string          `json:"tip"`
	Features         json.RawMessage `json:"features,omitempty"`
	AnomalyScore     float64         `json:"anomaly_score,omitempty"`
}

// Classify sends the batch to the bridge API with bounded retries. When the
// batch ultimately fails, each URL is retried individually; URLs that still
// fail get a synthesized Scan Failed verdict. The returned slice always has
// one verdict per input URL, in input order.
func (c *Client) Classify(ctx context.Context, urls []string) ([]*core.Verdict, error) {
	byURL, err := c.classifyWithRetry(ctx, urls)
	if err != nil {
		c.logger.Warn("Batch classification failed, retrying per URL",
			zap.Int("urls", len(urls)),
			zap.Error(err))
		byURL = c.classifyEach(ctx, urls)
	}

	verdicts := make([]*core.Verdict, len(urls))
	for i, url := range urls {
		if v, ok := byURL[url]; ok {
			verdicts[i] = v
		} else {
			verdicts[i] = unavailableVerdict()
		}
	}
	return verdicts, nil
}

// classifyWithRetry runs the batch call up to the configured attempt count
// with a fixed delay. Definitive failures short-circuit immediately.
func (c *Client) classifyWithRetry(ctx context.Context, urls []string) (map[string]*core.Verdict, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		byURL, err := c.classifyOnce(ctx, urls)
		if err == nil {
			return byURL, nil
		}
		lastErr = err

		if errors.Is(err, ErrDefinitive) {
			c.logger.Error("Definitive classifier failure, skipping retries",
				zap.Error(err))
			return nil, err
		}
		if attempt < c.attempts {
			c.logger.Warn("Transient classifier failure, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", c.retryDelay),
				zap.Error(err))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// classifyEach is the per-URL fallback after a failed batch: one more try
// per URL, synthesized Scan Failed for the rest.
func (c *Client) classifyEach(ctx context.Context, urls []string) map[string]*core.Verdict {
	byURL := make(map[string]*core.Verdict, len(urls))
	for _, url := range urls {
		single, err := c.classifyOnce(ctx, []string{url})
		if err != nil {
			c.logger.Warn("Per-URL classification failed",
				zap.String("url", url),
				zap.Error(err))
			byURL[url] = unavailableVerdict()
			continue
		}
		if v, ok := single[url]; ok {
			byURL[url] = v
		} else {
			byURL[url] = unavailableVerdict()
		}
	}
	return byURL
}

// classifyOnce performs a single batch request.
func (c *Client) classifyOnce(ctx context.Context, urls []string) (map[string]*core.Verdict, error) {
	body, err := json.Marshal(classifyRequest{URLs: urls})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("%w: classifier returned status %d", ErrDefinitive, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var decoded classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if decoded.Results == nil {
		return nil, errors.New("malformed classifier response: missing results array")
	}

	c.logger.Debug("Classifier batch completed",
		zap.Int("urls", len(urls)),
		zap.Int("results", len(decoded.Results)),
		zap.Duration("latency", time.Since(start)))

	byURL := make(map[string]*core.Verdict, len(decoded.Results))
	for _, r := range decoded.Results {
		byURL[r.URL] = r.toVerdict()
	}
	return byURL, nil
}

// Health reports bridge availability for operational monitoring. Failures
// here never affect the classify path.
func (c *Client) Health(ctx context.Context) (status string, details string) {
	healthURL := strings.Replace(c.endpoint, "/analyze", "/health", 1)

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, healthURL, nil)
	if err != nil {
		return "unhealthy", err.Error()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "unhealthy", err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "unhealthy", fmt.Sprintf("health endpoint returned status %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if detail, err := json.Marshal(body); err == nil {
			return "healthy", string(detail)
		}
	}
	return "healthy", ""
}

func (r wireResult) toVerdict() *core.Verdict {
	kind := core.VerdictKind(r.FinalVerdict)
	switch kind {
	case core.VerdictSafe, core.VerdictAnomalous, core.VerdictMalicious,
		core.VerdictWhitelisted, core.VerdictScanFailed:
	default:
		kind = core.VerdictUnknown
	}

	risk := r.AnomalyRiskLevel
	if risk == "" {
		risk = core.RiskUnknown
	}

	return &core.Verdict{
		FinalVerdict:     kind,
		ConfidenceScore:  r.ConfidenceScore,
		AnomalyRiskLevel: risk,
		Explanation:      r.Explanation,
		Tip:              r.Tip,
		CacheSource:      core.SourceMLService,
		LastScanned:      time.Now(),
	}
}

func unavailableVerdict() *core.Verdict {
	return &core.Verdict{
		FinalVerdict:     core.VerdictScanFailed,
		ConfidenceScore:  "0%",
		AnomalyRiskLevel: core.RiskUnknown,
		Explanation:      "Scanning service temporarily unavailable. The link could not be analyzed.",
		Tip:              "Try again later or open the link only if you trust the source.",
		CacheSource:      core.SourceFallback,
		LastScanned:      time.Now(),
	}
}
