package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wapsol/llmhub/internal/pricing"
	"github.com/wapsol/llmhub/internal/provider"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Chat rates per 1K tokens.
var chatPricing = pricing.Table{
	"gpt-4-turbo":            {Input: 0.01, Output: 0.03},
	"gpt-4":                  {Input: 0.03, Output: 0.06},
	"gpt-3.5":                {Input: 0.0015, Output: 0.002},
	"gpt-4o-mini":            {Input: 0.00015, Output: 0.0006},
	"gpt-4o":                 {Input: 0.0025, Output: 0.01},
	"text-embedding-3-small": {Input: 0.00002},
	"text-embedding-3-large": {Input: 0.00013},
}

// Whisper is quoted per minute; computed per second.
var transcribePricing = pricing.Table{
	"whisper": {Input: 0.006},
}

// TTS is quoted per character.
var speechPricing = pricing.Table{
	"tts-1":    {Input: 0.000015},
	"tts-1-hd": {Input: 0.00003},
}

// DALL-E is a flat price per generated image, keyed by model|size|quality.
// Model-level entries back the fallback chain for unknown tuples.
var imagePricing = pricing.Table{
	pricing.FixedKey("dall-e-3", "1024x1024", "standard"): {Input: 0.04},
	pricing.FixedKey("dall-e-3", "1024x1792", "standard"): {Input: 0.08},
	pricing.FixedKey("dall-e-3", "1792x1024", "standard"): {Input: 0.08},
	pricing.FixedKey("dall-e-3", "1024x1024", "hd"):       {Input: 0.08},
	pricing.FixedKey("dall-e-3", "1024x1792", "hd"):       {Input: 0.12},
	pricing.FixedKey("dall-e-3", "1792x1024", "hd"):       {Input: 0.12},
	pricing.FixedKey("dall-e-2", "1024x1024", ""):         {Input: 0.02},
	pricing.FixedKey("dall-e-2", "512x512", ""):           {Input: 0.018},
	pricing.FixedKey("dall-e-2", "256x256", ""):           {Input: 0.016},
	"dall-e-3": {Input: 0.04},
	"dall-e-2": {Input: 0.02},
}

type Provider struct {
	cfg       provider.Config
	baseURL   string
	tokenNorm *pricing.Normalizer
	durNorm   *pricing.Normalizer
	charNorm  *pricing.Normalizer
	fixedNorm *pricing.Normalizer
}

func New(cfg provider.Config) provider.Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	table := cfg.Pricing
	if table == nil {
		table = chatPricing
	}
	return &Provider{
		cfg:       cfg,
		baseURL:   baseURL,
		tokenNorm: pricing.NewNormalizer("openai", pricing.FamilyToken, table),
		durNorm:   pricing.NewNormalizer("openai", pricing.FamilyDuration, transcribePricing),
		charNorm:  pricing.NewNormalizer("openai", pricing.FamilyCharacter, speechPricing),
		fixedNorm: pricing.NewNormalizer("openai", pricing.FamilyFixed, imagePricing),
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) IsAvailable() bool { return p.cfg.APIKey != "" }

func (p *Provider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		Name:           "openai",
		DisplayName:    "OpenAI",
		Description:    "GPT chat models, Whisper transcription, TTS voices, DALL-E images and embeddings",
		WebsiteURL:     "https://openai.com",
		RequiresAPIKey: true,
	}
}

func (p *Provider) Models() []string {
	return []string{
		"gpt-4-turbo",
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-3.5-turbo",
		"whisper-1",
		"dall-e-3",
		"dall-e-2",
		"tts-1",
		"tts-1-hd",
		"text-embedding-3-small",
		"text-embedding-3-large",
	}
}

func (p *Provider) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if !p.IsAvailable() {
		return nil, provider.NotConfigured("openai", "Set OPENAI_API_KEY")
	}

	switch req.Category {
	case provider.CategoryText:
		return p.chat(ctx, req)
	case provider.CategoryTranscription:
		return p.transcribe(ctx, req)
	case provider.CategorySpeech:
		return p.speech(ctx, req)
	case provider.CategoryEmbedding:
		return p.embed(ctx, req)
	case provider.CategoryImage:
		return p.image(ctx, req)
	default:
		return nil, provider.InvalidArgument("openai",
			fmt.Sprintf("unsupported operation category %q", req.Category))
	}
}

type chatRequest struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   usage        `json:"usage"`
}

type chatChoice struct {
	Message provider.Message `json:"message"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (p *Provider) chat(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if len(req.Messages) == 0 {
		return nil, provider.InvalidArgument("openai", "messages cannot be empty")
	}

	messages := req.Messages
	if req.System != "" {
		messages = append([]provider.Message{{Role: "system", Content: req.System}}, messages...)
	}

	var apiResp chatResponse
	err := p.post(ctx, "/chat/completions", chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}, &apiResp)
	if err != nil {
		return nil, err
	}

	if len(apiResp.Choices) == 0 {
		return nil, provider.Upstream("openai", http.StatusOK, "openai api returned no choices")
	}

	rate := p.tokenNorm.Rate(req.Model)
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

type transcribeRequest struct {
	Model string `json:"model"`
	URL   string `json:"url"`
}

type transcribeResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
}

func (p *Provider) transcribe(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if req.MediaURL == "" {
		return nil, provider.InvalidArgument("openai", "media_url is required for transcription")
	}

	var apiResp transcribeResponse
	err := p.post(ctx, "/audio/transcriptions", transcribeRequest{
		Model: req.Model,
		URL:   req.MediaURL,
	}, &apiResp)
	if err != nil {
		return nil, err
	}

	units, cost := p.durNorm.DurationCost(req.Model, apiResp.Duration)

	return &provider.Result{
		Content: provider.TranscriptContent{
			Text:            apiResp.Text,
			DurationSeconds: apiResp.Duration,
			Language:        apiResp.Language,
		},
		InputUnits: units,
		CostUSD:    cost,
		Metadata:   map[string]any{"audio_duration": apiResp.Duration},
	}, nil
}

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

func (p *Provider) speech(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if req.Input == "" {
		return nil, provider.InvalidArgument("openai", "input text is required for speech synthesis")
	}

	voice, ok := provider.Opt[string](req, "voice")
	if !ok {
		voice = "alloy"
	}

	body, err := json.Marshal(speechRequest{Model: req.Model, Input: req.Input, Voice: voice})
	if err != nil {
		return nil, provider.InvalidArgument("openai", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/audio/speech", bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.InvalidArgument("openai", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport("openai", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Upstream("openai", resp.StatusCode,
			fmt.Sprintf("openai api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.WrapTransport("openai", err)
	}

	chars := len(req.Input)
	units, cost := p.charNorm.CharacterCost(req.Model, chars)

	return &provider.Result{
		Content: provider.AudioContent{
			MIMEType:   "audio/mpeg",
			Base64:     base64.StdEncoding.EncodeToString(audio),
			Characters: chars,
		},
		InputUnits: units,
		CostUSD:    cost,
		Metadata:   map[string]any{"voice": voice, "bytes": len(audio)},
	}, nil
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (p *Provider) image(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if req.Prompt == "" {
		return nil, provider.InvalidArgument("openai", "prompt is required for image generation")
	}

	size, ok := provider.Opt[string](req, "size")
	if !ok {
		size = "1024x1024"
	}
	quality, _ := provider.Opt[string](req, "quality")
	if req.Model == "dall-e-3" && quality == "" {
		quality = "standard"
	}

	var apiResp imageResponse
	err := p.post(ctx, "/images/generations", imageRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		N:       1,
		Size:    size,
		Quality: quality,
	}, &apiResp)
	if err != nil {
		return nil, err
	}
	if len(apiResp.Data) == 0 {
		return nil, provider.Upstream("openai", http.StatusOK, "openai api returned no images")
	}

	units, cost := p.fixedNorm.FixedCost(req.Model, size, quality)

	return &provider.Result{
		Content: provider.ImageContent{
			URL:           apiResp.Data[0].URL,
			Size:          size,
			Quality:       quality,
			RevisedPrompt: apiResp.Data[0].RevisedPrompt,
		},
		InputUnits: units,
		CostUSD:    cost,
		Metadata:   map[string]any{"size": size, "quality": quality},
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage usage `json:"usage"`
}

func (p *Provider) embed(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if len(req.Texts) == 0 {
		return nil, provider.InvalidArgument("openai", "texts cannot be empty for embeddings")
	}

	var apiResp embedResponse
	err := p.post(ctx, "/embeddings", embedRequest{Model: req.Model, Input: req.Texts}, &apiResp)
	if err != nil {
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

	tokens := apiResp.Usage.PromptTokens
	if tokens == 0 {
		tokens = apiResp.Usage.TotalTokens
	}
	cost := p.tokenNorm.TokenCost(req.Model, tokens, 0)

	return &provider.Result{
		Content:    provider.EmbeddingContent{Vectors: vectors, Dimensions: dims},
		InputUnits: tokens,
		CostUSD:    cost,
		Metadata:   map[string]any{"num_embeddings": len(vectors)},
	}, nil
}

func (p *Provider) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return provider.InvalidArgument("openai", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return provider.InvalidArgument("openai", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return provider.WrapTransport("openai", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return provider.Upstream("openai", resp.StatusCode,
			fmt.Sprintf("openai api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.Upstream("openai", resp.StatusCode, "malformed openai response")
	}
	return nil
}

func (p *Provider) EstimateCost(model string, inputUnits, outputUnits int) float64 {
	switch {
	case strings.Contains(model, "whisper"):
		seconds := float64(inputUnits) / pricing.UnitsPerSecond
		_, cost := p.durNorm.DurationCost(model, seconds)
		return cost
	case strings.Contains(model, "dall-e"):
		// Fixed family: the pseudo-units are cost*10000 at generation time.
		_, cost := p.fixedNorm.FixedCost(model, "1024x1024", "standard")
		return cost
	case strings.Contains(model, "tts"):
		chars := inputUnits / pricing.UnitsPerCharacter
		_, cost := p.charNorm.CharacterCost(model, chars)
		return cost
	default:
		return p.tokenNorm.TokenCost(model, inputUnits, outputUnits)
	}
}
