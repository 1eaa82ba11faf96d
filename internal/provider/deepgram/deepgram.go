package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/wapsol/llmhub/internal/pricing"
	"github.com/wapsol/llmhub/internal/provider"
)

const defaultBaseURL = "https://api.deepgram.com"

// Rates are quoted per minute of audio; billing is per second.
var defaultPricing = pricing.Table{
	"nova":          {Input: 0.0043},
	"whisper-large": {Input: 0.0048},
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
		norm:    pricing.NewNormalizer("deepgram", pricing.FamilyDuration, table),
	}
}

func (p *Provider) Name() string { return "deepgram" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "deepgram",
		DisplayName:    "Deepgram",
		Description:    "Speech-to-text with diarization and summarization",
		WebsiteURL:     "https://deepgram.com",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{"nova-3", "nova-2", "whisper-large"}
}

type transcribeResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
		Summary struct {
			Short string `json:"short"`
		} `json:"summary"`
	} `json:"results"`
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("deepgram", "Set DEEPGRAM_API_KEY")
	}
	if req.Category != provider.CategoryTranscription {
		return nil, provider.InvalidArgument("deepgram",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
	if req.MediaURL == "" {
		return nil, provider.InvalidArgument("deepgram", "media_url is required for transcription")
	}

	q := url.Values{}
	q.Set("model", req.Model)
	if v, ok := provider.Opt[bool](req, "diarize"); ok && v {
		q.Set("diarize", "true")
	}
	if v, ok := provider.Opt[bool](req, "summarize"); ok && v {
		q.Set("summarize", "v2")
	}
	if v, ok := provider.Opt[bool](req, "smart_format"); ok && v {
		q.Set("smart_format", "true")
	}
	if v, ok := provider.Opt[string](req, "language"); ok && v != "" {
		q.Set("language", v)
	}

	body, err := json.Marshal(map[string]string{"url": req.MediaURL})
	if err != nil {
		return nil, provider.InvalidArgument("deepgram", err.Error())
	}

	endpoint := p.baseURL + "/v1/listen?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("deepgram", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+p.cfg.APIKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("deepgram", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("deepgram", resp.StatusCode,
			fmt.Sprintf("deepgram api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var apiResp transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, provider.Upstream("deepgram", resp.StatusCode, "malformed deepgram response")
	}

	transcript := ""
	confidence := 0.0
	if len(apiResp.Results.Channels) > 0 && len(apiResp.Results.Channels[0].Alternatives) > 0 {
		alt := apiResp.Results.Channels[0].Alternatives[0]
		transcript = alt.Transcript
		confidence = alt.Confidence
	}

	seconds := apiResp.Metadata.Duration
	units, cost := p.norm.DurationCost(req.Model, seconds)

	return &provider.Result{
		Content: provider.TranscriptContent{
			Text:            transcript,
			DurationSeconds: seconds,
			Confidence:      confidence,
			Summary:         apiResp.Results.Summary.Short,
		},
		InputUnits: units,
		CostUSD:    cost,
		Metadata: map[string]any{
			"request_id":     apiResp.Metadata.RequestID,
			"audio_duration": seconds,
		},
	}, nil
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	seconds := float64(inputUnits) / pricing.UnitsPerSecond
	_, cost := p.norm.DurationCost(model, seconds)
	return cost
}
