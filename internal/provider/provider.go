package provider

import (
	"context"
	"time"

	"github.com/wapsol/llmhub/internal/pricing"
)

// Category names an operation family. The dispatcher keys its priority
// lists on these, and a Request is only valid for the category it was
// built for (a transcription request needs a media URL, a chat request
// needs messages, and so on).
type Category string

const (
	CategoryText          Category = "text"
	CategoryTranscription Category = "transcription"
	CategorySpeech        Category = "speech"
	CategoryEmbedding     Category = "embedding"
	CategoryRerank        Category = "rerank"
	CategoryImage         Category = "image"
	CategoryVideo         Category = "video"
	CategoryModeration    Category = "moderation"
)

// Request is the operation-agnostic envelope handed to every adapter.
// Only the fields relevant to the request's category are set; Options
// carries provider-specific toggles (diarization, voice id, resolution)
// that the core never inspects.
type Request struct {
	Category Category
	Model    string

	// Chat
	Messages []Message
	System   string

	// Transcription / video source
	MediaURL string

	// Speech synthesis and moderation input
	Input string

	// Embeddings
	Texts []string

	// Reranking
	Query     string
	Documents []string

	// Video generation
	Prompt string

	MaxTokens   int
	Temperature float64

	Options map[string]any
}

type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Opt reads a typed value from the request's option bag.
func Opt[T any](req *Request, key string) (T, bool) {
	var zero T
	if req == nil || req.Options == nil {
		return zero, false
	}
	v, ok := req.Options[key].(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Result is the standardized success value. Content is a closed set of
// variants rather than an untyped map so response consumers can switch
// exhaustively; the cost/unit envelope is identical across variants.
type Result struct {
	Content Content

	// Pseudo-unit counts. Real tokens for token-billed providers,
	// chars*100 / seconds*100 / cost*10000 for the other families.
	InputUnits  int
	OutputUnits int

	// Total cost in USD, rounded to 6 decimals at computation time.
	CostUSD float64

	// Optional natural input/output cost division, set by adapters
	// whose billing has one (token rates). When both are zero the
	// core splits CostUSD proportionally to units instead.
	InputCostUSD  float64
	OutputCostUSD float64

	// Diagnostics only; never required for correctness.
	Metadata map[string]any
}

// Content is the tagged response payload.
type Content interface {
	contentKind() string
}

type TextContent struct {
	Text string `json:"text"`
}

type TranscriptContent struct {
	Text            string      `json:"text"`
	DurationSeconds float64     `json:"duration_seconds"`
	Confidence      float64     `json:"confidence,omitempty"`
	Language        string      `json:"language,omitempty"`
	Utterances      []Utterance `json:"utterances,omitempty"`
	Summary         string      `json:"summary,omitempty"`
}

type Utterance struct {
	Speaker int     `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type AudioContent struct {
	MIMEType   string `json:"mime_type"`
	Base64     string `json:"base64"`
	Characters int    `json:"characters"`
}

type EmbeddingContent struct {
	Vectors    [][]float64 `json:"vectors"`
	Dimensions int         `json:"dimensions"`
}

type RankingContent struct {
	Results []RankedDocument `json:"results"`
}

type RankedDocument struct {
	Index    int     `json:"index"`
	Score    float64 `json:"relevance_score"`
	Document string  `json:"document,omitempty"`
}

type ImageContent struct {
	URL           string `json:"url"`
	Size          string `json:"size"`
	Quality       string `json:"quality,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type VideoContent struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds"`
}

type ModerationContent struct {
	Scores  map[string]float64 `json:"scores"`
	Level   string             `json:"level"`
	Flagged bool               `json:"flagged"`
}

func (TextContent) contentKind() string       { return "text" }
func (TranscriptContent) contentKind() string { return "transcript" }
func (AudioContent) contentKind() string      { return "audio" }
func (EmbeddingContent) contentKind() string  { return "embedding" }
func (RankingContent) contentKind() string    { return "ranking" }
func (ImageContent) contentKind() string      { return "image" }
func (VideoContent) contentKind() string      { return "video" }
func (ModerationContent) contentKind() string { return "moderation" }

// Descriptor is immutable provider identity and display metadata.
type Descriptor struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	LogoURL         string `json:"logo_url,omitempty"`
	WebsiteURL      string `json:"website_url,omitempty"`
	RequiresAPIKey  bool   `json:"requires_api_key"`
	RequiresBaseURL bool   `json:"requires_base_url"`
}

// Config is per-provider runtime configuration, built once at startup.
// A missing APIKey (or BaseURL where required) leaves the provider
// unavailable rather than failing configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	Pricing      pricing.Table
}

// Adapter is the capability contract every provider satisfies.
type Adapter interface {
	// Name is the stable identifier, e.g. "anthropic", "deepgram".
	Name() string

	// IsAvailable reports whether required credentials/URLs are present.
	IsAvailable() bool

	// Invoke executes the request against the external service and
	// translates the response into a standardized Result. Provider
	// errors are classified into the shared taxonomy (errors.go);
	// raw upstream exception types never leak.
	Invoke(ctx context.Context, req *Request) (*Result, error)

	// Models is a static capability advertisement; no network calls.
	Models() []string

	// Descriptor returns immutable display metadata.
	Descriptor() Descriptor

	// EstimateCost reconstructs USD cost from stored pseudo-units, so
	// the ledger's unit columns stay inverse-derivable per family.
	EstimateCost(model string, inputUnits, outputUnits int) float64
}
