package voyage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wapsol/llmhub/internal/provider"
)

func TestEmbed_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Expected /embeddings, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"embedding": [0.1, 0.2, 0.3]},
				{"embedding": [0.4, 0.5, 0.6]}
			],
			"usage": {"total_tokens": 50000}
		}`))
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	result, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryEmbedding,
		Model:    "voyage-3.5",
		Texts:    []string{"first", "second"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	emb, ok := result.Content.(provider.EmbeddingContent)
	if !ok {
		t.Fatalf("Expected EmbeddingContent, got %T", result.Content)
	}
	if len(emb.Vectors) != 2 || emb.Dimensions != 3 {
		t.Errorf("Expected 2 vectors of dim 3, got %d/%d", len(emb.Vectors), emb.Dimensions)
	}
	if result.InputUnits != 50000 {
		t.Errorf("Expected 50000 units, got %d", result.InputUnits)
	}
	// 50K tokens at $0.00006 per 1K.
	if result.CostUSD != 0.003 {
		t.Errorf("Expected cost 0.003, got %v", result.CostUSD)
	}
}

func TestRerank_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("Expected /rerank, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"index": 1, "relevance_score": 0.97},
				{"index": 0, "relevance_score": 0.12}
			],
			"usage": {"total_tokens": 2000}
		}`))
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	result, err := p.Invoke(context.Background(), &provider.Request{
		Category:  provider.CategoryRerank,
		Model:     "rerank-2.5",
		Query:     "refund policy",
		Documents: []string{"shipping times", "refunds within 30 days"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	ranking, ok := result.Content.(provider.RankingContent)
	if !ok {
		t.Fatalf("Expected RankingContent, got %T", result.Content)
	}
	if len(ranking.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(ranking.Results))
	}
	top := ranking.Results[0]
	if top.Index != 1 || top.Score != 0.97 {
		t.Errorf("Expected top result index 1 score 0.97, got %d/%v", top.Index, top.Score)
	}
	if top.Document != "refunds within 30 days" {
		t.Errorf("Expected original document text, got %s", top.Document)
	}
	// 2K tokens at $0.00005 per 1K.
	if result.CostUSD != 0.0001 {
		t.Errorf("Expected cost 0.0001, got %v", result.CostUSD)
	}
}

func TestRerank_MissingQuery(t *testing.T) {
	p := New(provider.Config{APIKey: "key"})
	_, err := p.Invoke(context.Background(), &provider.Request{
		Category:  provider.CategoryRerank,
		Model:     "rerank-2.5",
		Documents: []string{"doc"},
	})
	if provider.Classify(err) != provider.CodeInvalidArgument {
		t.Errorf("Expected invalid_argument, got %v", err)
	}
}

func TestInvoke_UnsupportedCategory(t *testing.T) {
	p := New(provider.Config{APIKey: "key"})
	_, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryText,
		Model:    "voyage-3.5",
	})
	if provider.Classify(err) != provider.CodeInvalidArgument {
		t.Errorf("Expected invalid_argument, got %v", err)
	}
}

func TestName(t *testing.T) {
	p := New(provider.Config{})
	if p.Name() != "voyage" {
		t.Errorf("Expected 'voyage', got %s", p.Name())
	}
}
