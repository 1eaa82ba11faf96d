package runway

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
	defaultBaseURL = "https://api.dev.runwayml.com/v1"
	apiVersion     = "2024-11-06"
	pollInterval   = 5 * time.Second
)

// Rates are quoted per minute of generated video, derived from Runway's
// credit pricing (credits per second at $0.01 per credit).
var defaultPricing = pricing.Table{
	"gen4_turbo":  {Input: 3.00},
	"gen4_aleph":  {Input: 9.00},
	"gen3a_turbo": {Input: 3.00},
	"gen3_alpha":  {Input: 6.00},
}

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
		norm:    pricing.NewNormalizer("runway", pricing.FamilyDuration, table),
	}
}

func (p *Provider) Name() string { return "runway" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "runway",
		DisplayName:    "Runway",
		Description:    "Text- and image-to-video generation",
		WebsiteURL:     "https://runwayml.com",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{"gen4_turbo", "gen4_aleph", "gen3a_turbo"}
}

type generateRequest struct {
	Model      string `json:"model"`
	PromptText string `json:"promptText"`
	Duration   int    `json:"duration,omitempty"`
	Ratio      string `json:"ratio,omitempty"`
}

type taskResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("runway", "Set RUNWAY_API_KEY")
	}
	if req.Category != provider.CategoryVideo {
		return nil, provider.InvalidArgument("runway",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
	if req.Prompt == "" {
		return nil, provider.InvalidArgument("runway", "prompt is required for video generation")
	}

	duration, ok := provider.Opt[int](req, "duration_seconds")
	if !ok || duration <= 0 {
		duration = 5
	}
	ratio, _ := provider.Opt[string](req, "ratio")

	task, err := p.submit(ctx, generateRequest{
		Model:      req.Model,
		PromptText: req.Prompt,
		Duration:   duration,
		Ratio:      ratio,
	})
	if err != nil {
		return nil, err
	}

	task, err = p.waitForTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	videoURL := ""
	if len(task.Output) > 0 {
		videoURL = task.Output[0]
	}

	units, cost := p.norm.DurationCost(req.Model, float64(duration))

	return &provider.Result{
		Content: provider.VideoContent{
			URL:             videoURL,
			DurationSeconds: duration,
		},
		InputUnits: units,
		CostUSD:    cost,
		Metadata:   map[string]any{"task_id": task.ID},
	}, nil
}

func (p *Provider) submit(ctx context.Context, payload generateRequest) (*taskResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, provider.InvalidArgument("runway", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/text_to_video", bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("runway", err.Error())
	}
	p.setHeaders(httpReq)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("runway", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("runway", resp.StatusCode,
			fmt.Sprintf("runway api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, provider.Upstream("runway", resp.StatusCode, "malformed runway response")
	}
	return &task, nil
}

// waitForTask polls until the generation task settles. The caller's context
// deadline bounds the wait.
func (p *Provider) waitForTask(ctx context.Context, taskID string) (*taskResponse, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, provider.WrapTransport("runway", ctx.Err())
		case <-ticker.C:
		}

		task, err := p.getTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch task.Status {
		case "SUCCEEDED":
			return task, nil
		case "FAILED", "CANCELLED":
			return nil, provider.Upstream("runway", http.StatusOK,
				fmt.Sprintf("runway task %s ended with status %s", taskID, task.Status))
		}
	}
}

func (p *Provider) getTask(ctx context.Context, taskID string) (*taskResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, provider.InvalidArgument("runway", err.Error())
	}
	p.setHeaders(httpReq)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("runway", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("runway", resp.StatusCode,
			fmt.Sprintf("runway api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, provider.Upstream("runway", resp.StatusCode, "malformed runway response")
	}
	return &task, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("X-Runway-Version", apiVersion)
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	seconds := float64(inputUnits) / pricing.UnitsPerSecond
	_, cost := p.norm.DurationCost(model, seconds)
	return cost
}
