package pika

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wapsol/llmhub/internal/provider"
)

func TestInvoke_SubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/fal-ai/pika/v2.2/text-to-video") {
			t.Errorf("Unexpected queue path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Key test-key" {
			t.Errorf("Expected Key auth header, got %s", got)
		}
		http.Error(w, `{"detail": "quota exhausted"}`, http.StatusForbidden)
	}))
	defer server.Close()

	p := New(provider.Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryVideo,
		Model:    "pika-2.2-720p",
		Prompt:   "a clip",
	})
	if provider.Classify(err) != provider.CodeUpstreamError {
		t.Errorf("Expected upstream_error, got %v", err)
	}
}

func TestInvoke_UnknownModel(t *testing.T) {
	p := New(provider.Config{APIKey: "key"})
	_, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryVideo,
		Model:    "pika-9000",
		Prompt:   "a clip",
	})
	if provider.Classify(err) != provider.CodeInvalidArgument {
		t.Errorf("Expected invalid_argument, got %v", err)
	}
}

func TestInvoke_NotConfigured(t *testing.T) {
	p := New(provider.Config{})
	_, err := p.Invoke(context.Background(), &provider.Request{
		Category: provider.CategoryVideo,
		Model:    "pika-2.2-720p",
		Prompt:   "a clip",
	})
	if provider.Classify(err) != provider.CodeNotConfigured {
		t.Errorf("Expected not_configured, got %v", err)
	}
}

func TestEstimateCost_ByResolution(t *testing.T) {
	p := New(provider.Config{APIKey: "key"})
	if got := p.EstimateCost("pika-2.2-720p", 0, 0); got != 0.20 {
		t.Errorf("Expected 0.20 for 720p, got %v", got)
	}
	if got := p.EstimateCost("pika-2.2-1080p", 0, 0); got != 0.45 {
		t.Errorf("Expected 0.45 for 1080p, got %v", got)
	}
}

func TestName(t *testing.T) {
	p := New(provider.Config{})
	if p.Name() != "pika" {
		t.Errorf("Expected 'pika', got %s", p.Name())
	}
}
