// Package dispatch resolves an operation category plus optional caller
// overrides into a concrete (provider, model) pair. Routing is static
// and declarative: the priority lists below are deployment-time policy,
// auditable at a glance, and an explicit request always wins.
package dispatch

import (
	"github.com/wapsol/llmhub/internal/provider"
)

// Choice is one (provider, model) candidate in a priority list.
type Choice struct {
	Provider string
	Model    string
}

// Priority lists per category, scanned in order; the first provider
// present in the registry's available set is chosen.
var categoryPriority = map[provider.Category][]Choice{
	provider.CategoryText: {
		{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"},
		{Provider: "openai", Model: "gpt-4-turbo"},
		{Provider: "groq", Model: "mixtral-8x7b-32768"},
		{Provider: "ollama", Model: "llama3.2"},
	},
	provider.CategoryTranscription: {
		{Provider: "deepgram", Model: "nova-3"},
		{Provider: "openai", Model: "whisper-1"},
	},
	provider.CategorySpeech: {
		{Provider: "elevenlabs", Model: "eleven_flash_v2_5"},
		{Provider: "openai", Model: "tts-1"},
	},
	provider.CategoryEmbedding: {
		{Provider: "voyage", Model: "voyage-3.5"},
		{Provider: "openai", Model: "text-embedding-3-small"},
	},
	provider.CategoryRerank: {
		{Provider: "voyage", Model: "rerank-2.5"},
	},
	provider.CategoryImage: {
		{Provider: "openai", Model: "dall-e-3"},
	},
	provider.CategoryVideo: {
		{Provider: "runway", Model: "gen4_turbo"},
		{Provider: "pika", Model: "pika-2.2-720p"},
	},
	provider.CategoryModeration: {
		{Provider: "perspective", Model: "perspective-v1"},
	},
}

// Default model per provider, used when the caller pins a provider but
// not a model.
var providerDefaults = map[string]string{
	"anthropic":   "claude-3-5-sonnet-20241022",
	"openai":      "gpt-4-turbo",
	"groq":        "mixtral-8x7b-32768",
	"ollama":      "llama3.2",
	"deepgram":    "nova-3",
	"elevenlabs":  "eleven_flash_v2_5",
	"voyage":      "voyage-3.5",
	"runway":      "gen4_turbo",
	"pika":        "pika-2.2-720p",
	"perspective": "perspective-v1",
}

// Operator hint per category for the NoProviderConfigured message.
var categoryEnvHint = map[provider.Category]string{
	provider.CategoryText:          "Set ANTHROPIC_API_KEY, OPENAI_API_KEY, GROQ_API_KEY or OLLAMA_BASE_URL",
	provider.CategoryTranscription: "Set DEEPGRAM_API_KEY or OPENAI_API_KEY",
	provider.CategorySpeech:        "Set ELEVENLABS_API_KEY or OPENAI_API_KEY",
	provider.CategoryEmbedding:     "Set VOYAGE_API_KEY or OPENAI_API_KEY",
	provider.CategoryRerank:        "Set VOYAGE_API_KEY",
	provider.CategoryImage:         "Set OPENAI_API_KEY",
	provider.CategoryVideo:         "Set RUNWAY_API_KEY or FAL_KEY",
	provider.CategoryModeration:    "Set PERSPECTIVE_API_KEY",
}

// Availability is the read side of the provider registry the
// dispatcher consults.
type Availability interface {
	IsAvailable(name string) bool
}

type Dispatcher struct {
	registry Availability
}

func New(registry Availability) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Select resolves (provider, model) for a category. Explicit values
// always win and are returned verbatim without availability checks;
// a pinned but unconfigured provider fails later, at lookup.
func (d *Dispatcher) Select(category provider.Category, explicitProvider, explicitModel string) (string, string, error) {
	if explicitProvider != "" && explicitModel != "" {
		return explicitProvider, explicitModel, nil
	}

	if explicitProvider != "" {
		model, ok := providerDefaults[explicitProvider]
		if !ok {
			model = defaultModelFromPriority(category)
		}
		return explicitProvider, model, nil
	}

	for _, choice := range categoryPriority[category] {
		if d.registry.IsAvailable(choice.Provider) {
			model := choice.Model
			if explicitModel != "" {
				model = explicitModel
			}
			return choice.Provider, model, nil
		}
	}

	return "", "", provider.NoProviderConfigured(string(category), categoryEnvHint[category])
}

func defaultModelFromPriority(category provider.Category) string {
	if choices := categoryPriority[category]; len(choices) > 0 {
		return choices[0].Model
	}
	return ""
}

// Categories lists every routable category, for capability listings.
func Categories() []provider.Category {
	return []provider.Category{
		provider.CategoryText,
		provider.CategoryTranscription,
		provider.CategorySpeech,
		provider.CategoryEmbedding,
		provider.CategoryRerank,
		provider.CategoryImage,
		provider.CategoryVideo,
		provider.CategoryModeration,
	}
}
