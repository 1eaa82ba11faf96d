package perspective

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wapsol/llmhub/internal/provider"
)

const defaultBaseURL = "https://commentanalyzer.googleapis.com/v1alpha1"

var defaultAttributes = []string{
	"TOXICITY",
	"SEVERE_TOXICITY",
	"IDENTITY_ATTACK",
	"INSULT",
	"PROFANITY",
	"THREAT",
}

// Provider scores text against Perspective API toxicity attributes. The API
// is free; usage rows still get pseudo-units so volume shows up in reports.
type Provider struct {
	cfg     provider.Config
	baseURL string
}

func New(cfg provider.Config) provider.Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{cfg: cfg, baseURL: baseURL}
}

func (p *Provider) Name() string { return "perspective" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "perspective",
		DisplayName:    "Perspective API",
		Description:    "Toxicity and harassment scoring for text",
		WebsiteURL:     "https://perspectiveapi.com",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{"perspective-v1"}
}

type analyzeRequest struct {
	Comment             comment             `json:"comment"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
	Languages           []string            `json:"languages,omitempty"`
}

type comment struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("perspective", "Set PERSPECTIVE_API_KEY")
	}
	if req.Category != provider.CategoryModeration {
		return nil, provider.InvalidArgument("perspective",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
	if req.Input == "" {
		return nil, provider.InvalidArgument("perspective", "input text is required for moderation")
	}

	attrs := map[string]struct{}{}
	for _, a := range defaultAttributes {
		attrs[a] = struct{}{}
	}

	payload := analyzeRequest{
		Comment:             comment{Text: req.Input},
		RequestedAttributes: attrs,
	}
	if lang, ok := provider.Opt[string](req, "language"); ok && lang != "" {
		payload.Languages = []string{lang}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, provider.InvalidArgument("perspective", err.Error())
	}

	endpoint := p.baseURL + "/comments:analyze?key=" + p.cfg.APIKey
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("perspective", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("perspective", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("perspective", resp.StatusCode,
			fmt.Sprintf("perspective api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var apiResp analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, provider.Upstream("perspective", resp.StatusCode, "malformed perspective response")
	}

	scores := make(map[string]float64, len(apiResp.AttributeScores))
	highest := 0.0
	for attr, s := range apiResp.AttributeScores {
		scores[attr] = s.SummaryScore.Value
		if s.SummaryScore.Value > highest {
			highest = s.SummaryScore.Value
		}
	}

	units := len(req.Input) / 10
	if units < 1 {
		units = 1
	}

	return &provider.Result{
		Content: provider.ModerationContent{
			Scores:  scores,
			Level:   levelFor(highest),
			Flagged: highest >= 0.7,
		},
		InputUnits: units,
		CostUSD:    0,
		Metadata:   map[string]any{"highest_score": highest},
	}, nil
}

func levelFor(score float64) string {
	switch {
	case score >= 0.9:
		return "severe"
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "moderate"
	default:
		return "low"
	}
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	return 0
}
