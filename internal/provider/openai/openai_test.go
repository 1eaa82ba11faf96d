package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wapsol/llmhub/internal/provider"
)

func TestChat_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		resp := chatResponse{
			ID:    "chatcmpl-test",
			Model: "gpt-4o-mini",
			Choices: []chatChoice{
				{Message: provider.Message{Role: "assistant", Content: "Hello from OpenAI mock!"}},
			},
			Usage: usage{PromptTokens: 15, CompletionTokens: 25},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	result, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryText,
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	text, ok := result.Content.(provider.TextContent)
	if !ok {
		t.Fatalf("Expected TextContent, got %T", result.Content)
	}
	if text.Text != "Hello from OpenAI mock!" {
		t.Errorf("Expected mock reply, got %s", text.Text)
	}
	if result.InputUnits != 15 || result.OutputUnits != 25 {
		t.Errorf("Expected 15/25 units, got %d/%d", result.InputUnits, result.OutputUnits)
	}
}

func TestTranscribe_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("Expected /audio/transcriptions, got %s", r.URL.Path)
		}
		resp := transcribeResponse{Text: "hello world", Duration: 125, Language: "en"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	result, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryTranscription,
		Model:    "whisper-1",
		MediaURL: "https://example.com/audio.mp3",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	transcript, ok := result.Content.(provider.TranscriptContent)
	if !ok {
		t.Fatalf("Expected TranscriptContent, got %T", result.Content)
	}
	if transcript.Text != "hello world" {
		t.Errorf("Expected transcript text, got %s", transcript.Text)
	}

	// 125 seconds = 12500 pseudo-units, billed per second at $0.006/min.
	if result.InputUnits != 12500 {
		t.Errorf("Expected 12500 units, got %d", result.InputUnits)
	}
	want := 0.0125 // round6(125/60 * 0.006)
	if result.CostUSD != want {
		t.Errorf("Expected cost %v, got %v", want, result.CostUSD)
	}
}

func TestSpeech_Mock(t *testing.T) {
	audioBytes := []byte("fake-mp3-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("Expected /audio/speech, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audioBytes)
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	input := "Hello there" // 11 chars
	result, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategorySpeech,
		Model:    "tts-1",
		Input:    input,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	audio, ok := result.Content.(provider.AudioContent)
	if !ok {
		t.Fatalf("Expected AudioContent, got %T", result.Content)
	}
	if audio.Characters != len(input) {
		t.Errorf("Expected %d characters, got %d", len(input), audio.Characters)
	}
	if result.InputUnits != len(input)*100 {
		t.Errorf("Expected %d units, got %d", len(input)*100, result.InputUnits)
	}
	want := 0.000165 // 11 * 0.000015
	if result.CostUSD != want {
		t.Errorf("Expected cost %v, got %v", want, result.CostUSD)
	}
}

func TestEmbed_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [{"embedding": [0.1, 0.2, 0.3]}, {"embedding": [0.4, 0.5, 0.6]}],
			"usage": {"prompt_tokens": 8, "total_tokens": 8}
		}`))
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	result, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryEmbedding,
		Model:    "text-embedding-3-small",
		Texts:    []string{"alpha", "beta"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	emb, ok := result.Content.(provider.EmbeddingContent)
	if !ok {
		t.Fatalf("Expected EmbeddingContent, got %T", result.Content)
	}
	if len(emb.Vectors) != 2 || emb.Dimensions != 3 {
		t.Errorf("Expected 2 vectors of dim 3, got %d of dim %d", len(emb.Vectors), emb.Dimensions)
	}
	if result.InputUnits != 8 {
		t.Errorf("Expected 8 units, got %d", result.InputUnits)
	}
}

func TestImage_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("Expected /images/generations, got %s", r.URL.Path)
		}
		var body imageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.N != 1 || body.Size != "1024x1792" || body.Quality != "hd" {
			t.Errorf("Unexpected request %+v", body)
		}
		json.NewEncoder(w).Encode(imageResponse{
			Data: []struct {
				URL           string `json:"url"`
				RevisedPrompt string `json:"revised_prompt"`
			}{{URL: "https://cdn.example.com/img.png", RevisedPrompt: "a lighthouse at dusk, oil painting"}},
		})
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	result, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryImage,
		Model:    "dall-e-3",
		Prompt:   "a lighthouse at dusk",
		Options:  map[string]any{"size": "1024x1792", "quality": "hd"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	img, ok := result.Content.(provider.ImageContent)
	if !ok {
		t.Fatalf("Expected ImageContent, got %T", result.Content)
	}
	if img.URL != "https://cdn.example.com/img.png" {
		t.Errorf("Unexpected URL %s", img.URL)
	}
	if img.RevisedPrompt == "" {
		t.Error("Expected revised prompt to carry through")
	}
	// Flat $0.12 per hd 1024x1792 asset; pseudo-units reconstruct the cost.
	if result.CostUSD != 0.12 {
		t.Errorf("Expected cost 0.12, got %v", result.CostUSD)
	}
	if result.InputUnits != 1200 {
		t.Errorf("Expected 1200 pseudo-units, got %d", result.InputUnits)
	}
}

func TestImage_Defaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body imageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Size != "1024x1024" || body.Quality != "standard" {
			t.Errorf("Expected default size/quality, got %+v", body)
		}
		json.NewEncoder(w).Encode(imageResponse{
			Data: []struct {
				URL           string `json:"url"`
				RevisedPrompt string `json:"revised_prompt"`
			}{{URL: "https://cdn.example.com/img.png"}},
		})
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	result, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryImage,
		Model:    "dall-e-3",
		Prompt:   "a lighthouse at dusk",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.CostUSD != 0.04 || result.InputUnits != 400 {
		t.Errorf("Expected 0.04/400, got %v/%d", result.CostUSD, result.InputUnits)
	}
}

func TestImage_MissingPrompt(t *testing.T) {
	p := New(provider.Config{APIKey: "key"})
	_, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryImage,
		Model:    "dall-e-3",
	})
	if provider.Classify(err) != provider.CodeInvalidArgument {
		t.Errorf("Expected invalid_argument, got %v", err)
	}
}

func TestInvoke_UnsupportedCategory(t *testing.T) {
	p := New(provider.Config{APIKey: "key"})
	_, err := p.Invoke(context.Background(), &provider.Request{Category: provider.CategoryVideo})
	if provider.Classify(err) != provider.CodeInvalidArgument {
		t.Errorf("Expected invalid_argument, got %v", err)
	}
}

func TestName(t *testing.T) {
	p := New(provider.Config{})
	if p.Name() != "openai" {
		t.Errorf("Expected 'openai', got %s", p.Name())
	}
}
