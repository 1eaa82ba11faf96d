package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wapsol/llmhub/internal/pricing"
	"github.com/wapsol/llmhub/internal/provider"
)

const defaultBaseURL = "https://api.anthropic.com/v1"

// Per-1K token rates keyed by model family substring, so dated releases
// resolve without enumeration.
var defaultPricing = pricing.Table{
	"opus":   {Input: 0.015, Output: 0.075},
	"sonnet": {Input: 0.003, Output: 0.015},
	"haiku":  {Input: 0.00025, Output: 0.00125},
}

type Provider struct {
	cfg     provider.Config
	baseURL string
	norm    *pricing.Normalizer
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Content []anthropicContent `json:"content"`
	Model   string             `json:"model"`
	Usage   anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
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
		norm:    pricing.NewNormalizer("anthropic", pricing.FamilyToken, table),
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "anthropic",
		DisplayName:    "Anthropic",
		Description:    "Claude family of chat models",
		WebsiteURL:     "https://www.anthropic.com",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-sonnet-20240229",
		"claude-3-haiku-20240307",
	}
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("anthropic", "Set ANTHROPIC_API_KEY")
	}
	if len(req.Messages) == 0 {
		return nil, provider.InvalidArgument("anthropic", "messages cannot be empty")
	}

	body, err := json.Marshal(p.mapRequest(req))
	if err != nil {
		return nil, provider.InvalidArgument("anthropic", err.Error())
	}

	url := fmt.Sprintf("%s/messages", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("anthropic", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("anthropic", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("anthropic", resp.StatusCode,
			fmt.Sprintf("anthropic api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, provider.Upstream("anthropic", resp.StatusCode, "malformed anthropic response")
	}

	if len(apiResp.Content) == 0 {
		return nil, provider.Upstream("anthropic", resp.StatusCode, "anthropic api returned no content")
	}

	rate := p.norm.Rate(req.Model)
	inputCost := pricing.Round6(float64(apiResp.Usage.InputTokens) / 1000 * rate.Input)
	outputCost := pricing.Round6(float64(apiResp.Usage.OutputTokens) / 1000 * rate.Output)

	return &provider.Result{
		Content:       provider.TextContent{Text: apiResp.Content[0].Text},
		InputUnits:    apiResp.Usage.InputTokens,
		OutputUnits:   apiResp.Usage.OutputTokens,
		CostUSD:       pricing.Round6(inputCost + outputCost),
		InputCostUSD:  inputCost,
		OutputCostUSD: outputCost,
		Metadata: map[string]any{
			"response_id": apiResp.ID,
			"model":       apiResp.Model,
		},
	}, nil
}

func (p *Provider) mapRequest(req *provider.Request) anthropicRequest {
	system := req.System
	var messages []anthropicMessage

	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, anthropicMessage{Role: role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    messages,
	}
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	return p.norm.TokenCost(model, inputUnits, outputUnits)
}
