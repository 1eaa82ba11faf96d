package pika

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wapsol/llmhub/internal/pricing"
	"github.com/wapsol/llmhub/internal/provider"
)

const (
	defaultBaseURL = "https://queue.fal.run"
	pollInterval   = 3 * time.Second
)

// Flat rate per generated clip, keyed by model and resolution.
var defaultPricing = pricing.Table{
	pricing.FixedKey("pika-2.2", "720p", ""):  {Input: 0.20},
	pricing.FixedKey("pika-2.2", "1080p", ""): {Input: 0.45},
	"pika-2.2": {Input: 0.20},
}

var modelEndpoints = map[string]string{
	"pika-2.2-720p":  "fal-ai/pika/v2.2/text-to-video",
	"pika-2.2-1080p": "fal-ai/pika/v2.2/text-to-video",
}

// Provider generates Pika video clips through fal.ai's hosted queue.
type Provider struct {
	cfg     provider.Config
	baseURL string
	norm    *pricing.Normalizer
}

func New(cfg provider.Config) provider.Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	table := cfg.Pricing
	if table == nil {
		table = defaultPricing
	}
	return &Provider{
		cfg:     cfg,
		baseURL: baseURL,
		norm:    pricing.NewNormalizer("pika", pricing.FamilyFixed, table),
	}
}

func (p *Provider) Name() string { return "pika" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "pika",
		DisplayName:    "Pika",
		Description:    "Text-to-video clips at flat per-asset pricing",
		WebsiteURL:     "https://pika.art",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{"pika-2.2-720p", "pika-2.2-1080p"}
}

type submitRequest struct {
	Prompt     string `json:"prompt"`
	Resolution string `json:"resolution"`
	Duration   int    `json:"duration,omitempty"`
}

type queueStatus struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	ResponseURL string `json:"response_url"`
}

type generateResponse struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("pika", "Set FAL_KEY")
	}
	if req.Category != provider.CategoryVideo {
		return nil, provider.InvalidArgument("pika",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
	if req.Prompt == "" {
		return nil, provider.InvalidArgument("pika", "prompt is required for video generation")
	}

	endpoint, ok := modelEndpoints[req.Model]
	if !ok {
		return nil, provider.InvalidArgument("pika", fmt.Sprintf("unknown model %q", req.Model))
	}
	resolution := resolutionFor(req.Model)

	duration, _ := provider.Opt[int](req, "duration_seconds")

	status, err := p.submit(ctx, endpoint, submitRequest{
		Prompt:     req.Prompt,
		Resolution: resolution,
		Duration:   duration,
	})
	if err != nil {
		return nil, err
	}

	videoURL, err := p.waitForResult(ctx, endpoint, status.RequestID)
	if err != nil {
		return nil, err
	}

	units, cost := p.norm.FixedCost("pika-2.2", resolution, "")

	return &provider.Result{
		Content: provider.VideoContent{
			URL:             videoURL,
			DurationSeconds: duration,
		},
		InputUnits: units,
		CostUSD:    cost,
		Metadata:   map[string]any{"request_id": status.RequestID, "resolution": resolution},
	}, nil
}

func resolutionFor(model string) string {
	if model == "pika-2.2-1080p" {
		return "1080p"
	}
	return "720p"
}

func (p *Provider) submit(ctx context.Context, endpoint string, payload submitRequest) (*queueStatus, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, provider.InvalidArgument("pika", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/"+endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("pika", err.Error())
	}
	p.setHeaders(httpReq)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("pika", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("pika", resp.StatusCode,
			fmt.Sprintf("fal api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var status queueStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, provider.Upstream("pika", resp.StatusCode, "malformed fal response")
	}
	return &status, nil
}

func (p *Provider) waitForResult(ctx context.Context, endpoint, requestID string) (string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", p.baseURL, endpoint, requestID)
	resultURL := fmt.Sprintf("%s/%s/requests/%s", p.baseURL, endpoint, requestID)

	for {
		select {
		case <-ctx.Done():
			return "", provider.WrapTransport("pika", ctx.Err())
		case <-ticker.C:
		}

		var status queueStatus
		if err := p.get(ctx, statusURL, &status); err != nil {
			return "", err
		}

		switch status.Status {
		case "COMPLETED":
			var result generateResponse
			if err := p.get(ctx, resultURL, &result); err != nil {
				return "", err
			}
			return result.Video.URL, nil
		case "FAILED":
			return "", provider.Upstream("pika", http.StatusOK,
				fmt.Sprintf("fal request %s failed", requestID))
		}
	}
}

func (p *Provider) get(ctx context.Context, rawURL string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return provider.InvalidArgument("pika", err.Error())
	}
	p.setHeaders(httpReq)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return provider.WrapTransport("pika", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return provider.Upstream("pika", resp.StatusCode,
			fmt.Sprintf("fal api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.Upstream("pika", resp.StatusCode, "malformed fal response")
	}
	return nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+p.cfg.APIKey)
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	_, cost := p.norm.FixedCost("pika-2.2", resolutionFor(model), "")
	return cost
}
