package groq

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

const defaultBaseURL = "https://api.groq.com/openai/v1"

var defaultPricing = pricing.Table{
	"mixtral": {Input: 0.00027, Output: 0.00027},
	"llama":   {Input: 0.00007, Output: 0.00007},
}

// Provider serves chat completions through Groq's OpenAI-compatible API.
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
		norm:    pricing.NewNormalizer("groq", pricing.FamilyToken, table),
	}
}

func (p *Provider) Name() string { return "groq" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "groq",
		DisplayName:    "Groq",
		Description:    "Low-latency open-weight model inference",
		WebsiteURL:     "https://groq.com",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{
		"llama-3.3-70b-versatile",
		"llama-3.1-8b-instant",
		"mixtral-8x7b-32768",
	}
}

type chatRequest struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message provider.Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("groq", "Set GROQ_API_KEY")
	}
	if req.Category != provider.CategoryText {
		return nil, provider.InvalidArgument("groq",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
	if len(req.Messages) == 0 {
		return nil, provider.InvalidArgument("groq", "messages cannot be empty")
	}

	messages := req.Messages
	if req.System != "" {
		messages = append([]provider.Message{{Role: "system", Content: req.System}}, messages...)
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, provider.InvalidArgument("groq", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("groq", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("groq", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("groq", resp.StatusCode,
			fmt.Sprintf("groq api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, provider.Upstream("groq", resp.StatusCode, "malformed groq response")
	}
	if len(apiResp.Choices) == 0 {
		return nil, provider.Upstream("groq", http.StatusOK, "groq api returned no choices")
	}

	rate := p.norm.Rate(req.Model)
	inputCost := pricing.Round6(float64(apiResp.Usage.PromptTokens) / 1000 * rate.Input)
	outputCost := pricing.Round6(float64(apiResp.Usage.CompletionTokens) / 1000 * rate.Output)

	return &provider.Result{
		Content:       provider.TextContent{Text: apiResp.Choices[0].Message.Content},
		InputUnits:    apiResp.Usage.PromptTokens,
		OutputUnits:   apiResp.Usage.CompletionTokens,
		CostUSD:       pricing.Round6(inputCost + outputCost),
		InputCostUSD:  inputCost,
		OutputCostUSD: outputCost,
		Metadata:      map[string]any{"response_id": apiResp.ID, "model": apiResp.Model},
	}, nil
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	return p.norm.TokenCost(model, inputUnits, outputUnits)
}
