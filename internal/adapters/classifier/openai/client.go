// Package openai implements the Classifier port on an OpenAI model as an
// alternative to the ML bridge, for deployments without the bridge service.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/core"
)

// Client classifies URLs with a chat-completion model.
type Client struct {
	client    *openai.Client
	modelName string
	maxTokens int
	logger    *zap.Logger
}

// analysisResponse is the structured answer the model is prompted to return
// for each URL.
type analysisResponse struct {
	URL              string `json:"url"`
	FinalVerdict     string `json:"final_verdict"`
	ConfidenceScore  string `json:"confidence_score"`
	AnomalyRiskLevel string `json:"anomaly_risk_level"`
	Explanation      string `json:"explanation"`
	Tip              string `json:"tip"`
}

const promptFormat = `You are a URL threat classification system. Analyze the following URLs for phishing, malware delivery and forced-redirect patterns.
Respond with a JSON object {"results": [...]} containing one object per URL with:
- url: the URL analyzed
- final_verdict: "Safe", "Anomalous" or "Malicious"
- confidence_score: percentage string such as "92%%"
- anomaly_risk_level: "Low", "Medium" or "High"
- explanation: one-sentence reason for the verdict
- tip: one-sentence advice for the user

URLs:
%s

Respond only with the JSON object and nothing else.`

// NewClient creates an OpenAI-backed classifier.
func NewClient(apiKey, modelName string, maxTokens int, logger *zap.Logger) *Client {
	return &Client{
		client:    openai.NewClient(apiKey),
		modelName: modelName,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Classify asks the model for one verdict per URL. Missing or unparsable
// answers surface as an error; the resolver downgrades that to Scan Failed.
func (c *Client) Classify(ctx context.Context, urls []string) ([]*core.Verdict, error) {
	urlList := ""
	for _, u := range urls {
		urlList += "- " + u + "\n"
	}

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a URL threat classification system. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(promptFormat, urlList),
			},
		},
		MaxTokens: c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: "json_object",
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	var decoded struct {
		Results []analysisResponse `json:"results"`
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(extractJSON(content)), &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}

	byURL := make(map[string]*core.Verdict, len(decoded.Results))
	for _, r := range decoded.Results {
		byURL[r.URL] = r.toVerdict()
	}

	verdicts := make([]*core.Verdict, len(urls))
	for i, u := range urls {
		v, ok := byURL[u]
		if !ok {
			return nil, fmt.Errorf("model response missing verdict for %s", u)
		}
		verdicts[i] = v
	}
	return verdicts, nil
}

func (r analysisResponse) toVerdict() *core.Verdict {
	kind := core.VerdictKind(r.FinalVerdict)
	switch kind {
	case core.VerdictSafe, core.VerdictAnomalous, core.VerdictMalicious:
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

// extractJSON trims any prose the model wraps around the JSON object.
func extractJSON(text string) string {
	start, end := -1, -1
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start = i
			break
		}
	}
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == '}' {
			end = i + 1
			break
		}
	}
	if start >= 0 && end > start {
		return text[start:end]
	}
	return text
}
