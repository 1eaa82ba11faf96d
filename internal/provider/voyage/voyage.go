package voyage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wapsol/llmhub/internal/pricing"
	"github.com/wapsol/llmhub/internal/provider"
	"github.com/wapsol/llmhub/internal/tokencount"
)

const defaultBaseURL = "https://api.voyageai.com/v1"

var defaultPricing = pricing.Table{
	"voyage-3.5-lite": {Input: 0.00002},
	"voyage-3.5":      {Input: 0.00006},
	"voyage-3-large":  {Input: 0.00018},
	"voyage-code":     {Input: 0.00018},
	"voyage-finance":  {Input: 0.00012},
	"voyage-law":      {Input: 0.00012},
	"rerank-2.5-lite": {Input: 0.00002},
	"rerank-2.5":      {Input: 0.00005},
}

// Provider covers Voyage AI embeddings and reranking, both billed per token.
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
		norm:    pricing.NewNormalizer("voyage", pricing.FamilyToken, table),
	}
}

func (p *Provider) Name() string { return "voyage" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "voyage",
		DisplayName:    "Voyage AI",
		Description:    "Embeddings and reranking models",
		WebsiteURL:     "https://voyageai.com",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{
		"voyage-3.5",
		"voyage-3.5-lite",
		"voyage-3-large",
		"voyage-code-3",
		"rerank-2.5",
		"rerank-2.5-lite",
	}
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("voyage", "Set VOYAGE_API_KEY")
	}

	switch req.Category {
	case provider.CategoryEmbedding:
		return p.embed(ctx, req)
	case provider.CategoryRerank:
		return p.rerank(ctx, req)
	default:
		return nil, provider.InvalidArgument("voyage",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) embed(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if len(req.Texts) == 0 {
		return nil, provider.InvalidArgument("voyage", "texts cannot be empty for embeddings")
	}

	var apiResp embedResponse
	if err := p.post(ctx, "/embeddings", embedRequest{Model: req.Model, Input: req.Texts}, &apiResp); err != nil {
		return nil, err
	}

	vectors := make([][]float64, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vectors[i] = d.Embedding
	}
	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}

	tokens := apiResp.Usage.TotalTokens
	if tokens == 0 {
		tokens = tokencount.CountAll(req.Texts)
	}
	cost := p.norm.TokenCost(req.Model, tokens, 0)

	return &provider.Result{
		Content:    provider.EmbeddingContent{Vectors: vectors, Dimensions: dims},
		InputUnits: tokens,
		CostUSD:    cost,
		Metadata:   map[string]any{"num_embeddings": len(vectors)},
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) rerank(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if req.Query == "" {
		return nil, provider.InvalidArgument("voyage", "query is required for reranking")
	}
	if len(req.Documents) == 0 {
		return nil, provider.InvalidArgument("voyage", "documents cannot be empty for reranking")
	}

	topK, _ := provider.Opt[int](req, "top_k")

	var apiResp rerankResponse
	err := p.post(ctx, "/rerank", rerankRequest{
		Model:     req.Model,
		Query:     req.Query,
		Documents: req.Documents,
		TopK:      topK,
	}, &apiResp)
	if err != nil {
		return nil, err
	}

	results := make([]provider.RankedDocument, len(apiResp.Data))
	for i, d := range apiResp.Data {
		results[i] = provider.RankedDocument{
			Index: d.Index,
			Score: d.RelevanceScore,
		}
		if d.Index < len(req.Documents) {
			results[i].Document = req.Documents[d.Index]
		}
	}

	tokens := apiResp.Usage.TotalTokens
	if tokens == 0 {
		tokens = tokencount.Count(req.Query) + tokencount.CountAll(req.Documents)
	}
	cost := p.norm.TokenCost(req.Model, tokens, 0)

	return &provider.Result{
		Content:    provider.RankingContent{Results: results},
		InputUnits: tokens,
		CostUSD:    cost,
		Metadata:   map[string]any{"num_documents": len(req.Documents)},
	}, nil
}

func (p *Provider) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.InvalidArgument("voyage", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return provider.InvalidArgument("voyage", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return provider.WrapTransport("voyage", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return provider.Upstream("voyage", resp.StatusCode,
			fmt.Sprintf("voyage api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.Upstream("voyage", resp.StatusCode, "malformed voyage response")
	}
	return nil
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	return p.norm.TokenCost(model, inputUnits, outputUnits)
}
