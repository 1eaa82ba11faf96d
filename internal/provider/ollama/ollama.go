package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wapsol/llmhub/internal/provider"
	"github.com/wapsol/llmhub/internal/tokencount"
)

// Provider talks to a self-hosted Ollama server. There is no API key and no
// billing; usage is still recorded with token counts and zero cost.
type Provider struct {
	cfg provider.Config
}

func New(cfg provider.Config) provider.Adapter {
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return "ollama" }

// Availability is keyed on the base URL rather than a credential.
func (p *Provider) IsAvailable() bool { return p.cfg.BaseURL != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:            "ollama",
		DisplayName:     "Ollama",
		Description:     "Self-hosted open-weight model runner",
		WebsiteURL:      "https://ollama.com",
		RequiresAPIKey:  false,
		RequiresBaseURL: true,
	}
}

func (p *Provider) Models() []string {
	return []string{"llama3.2", "mistral", "qwen2.5", "phi3"}
}

type chatRequest struct {
	Model    string             `json:"model"`
	Messages []provider.Message `json:"messages"`
	Stream   bool               `json:"stream"`
}

type chatResponse struct {
	Model   string           `json:"model"`
	Message provider.Message `json:"message"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("ollama", "Set OLLAMA_BASE_URL")
	}
	if req.Category != provider.CategoryText {
		return nil, provider.InvalidArgument("ollama",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
	if len(req.Messages) == 0 {
		return nil, provider.InvalidArgument("ollama", "messages cannot be empty")
	}

	messages := req.Messages
	if req.System != "" {
		messages = append([]provider.Message{{Role: "system", Content: req.System}}, messages...)
	}

	body, err := json.Marshal(chatRequest{Model: req.Model, Messages: messages, Stream: false})
	if err != nil {
		return nil, provider.InvalidArgument("ollama", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("ollama", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("ollama", resp.StatusCode,
			fmt.Sprintf("ollama error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, provider.Upstream("ollama", resp.StatusCode, "malformed ollama response")
	}

	inputTokens := apiResp.PromptEvalCount
	outputTokens := apiResp.EvalCount
	if inputTokens == 0 {
		for _, m := range messages {
			inputTokens += tokencount.Count(m.Content)
		}
	}
	if outputTokens == 0 {
		outputTokens = tokencount.Count(apiResp.Message.Content)
	}

	return &provider.Result{
		Content:     provider.TextContent{Text: apiResp.Message.Content},
		InputUnits:  inputTokens,
		OutputUnits: outputTokens,
		CostUSD:     0,
		Metadata:    map[string]any{"model": apiResp.Model},
	}, nil
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	return 0
}
