package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wapsol/llmhub/internal/pricing"
	"github.com/wapsol/llmhub/internal/provider"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

var defaultPricing = pricing.Table{
	"eleven_flash":        {Input: 0.00008},
	"eleven_multilingual": {Input: 0.00016},
	"eleven_turbo":        {Input: 0.00016},
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
		norm:    pricing.NewNormalizer("elevenlabs", pricing.FamilyCharacter, table),
	}
}

func (p *Provider) Name() string { return "elevenlabs" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "elevenlabs",
		DisplayName:    "ElevenLabs",
		Description:    "Text-to-speech voice synthesis",
		WebsiteURL:     "https://elevenlabs.io",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{"eleven_multilingual_v2", "eleven_turbo_v2_5", "eleven_flash_v2_5"}
}

type speechRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("elevenlabs", "Set ELEVENLABS_API_KEY")
	}
	if req.Category != provider.CategorySpeech {
		return nil, provider.InvalidArgument("elevenlabs",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
	if req.Input == "" {
		return nil, provider.InvalidArgument("elevenlabs", "input text is required for speech synthesis")
	}

	voiceID, ok := provider.Opt[string](req, "voice_id")
	if !ok || voiceID == "" {
		voiceID = defaultVoiceID
	}

	body, err := json.Marshal(speechRequest{Text: req.Input, ModelID: req.Model})
	if err != nil {
		return nil, provider.InvalidArgument("elevenlabs", err.Error())
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", p.baseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("elevenlabs", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("elevenlabs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("elevenlabs", resp.StatusCode,
			fmt.Sprintf("elevenlabs api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.WrapTransport("elevenlabs", err)
	}

	chars := len(req.Input)
	units, cost := p.norm.CharacterCost(req.Model, chars)

	return &provider.Result{
		Content: provider.AudioContent{
			MIMEType:   "audio/mpeg",
			Base64:     base64.StdEncoding.EncodeToString(audio),
			Characters: chars,
		},
		InputUnits: units,
		CostUSD:    cost,
		Metadata:   map[string]any{"voice_id": voiceID, "bytes": len(audio)},
	}, nil
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	chars := inputUnits / pricing.UnitsPerCharacter
	_, cost := p.norm.CharacterCost(model, chars)
	return cost
}
