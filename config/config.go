package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Providers. A missing credential is not an error; it leaves that
	// provider unavailable.
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	GroqAPIKey        string
	OllamaBaseURL     string
	DeepgramAPIKey    string
	ElevenLabsAPIKey  string
	VoyageAPIKey      string
	RunwayAPIKey      string
	FalAPIKey         string // hosted Pika access
	PerspectiveAPIKey string

	ProviderTimeout time.Duration // per outbound call, default: 60s

	// Observability
	Environment          string // "development", "staging", "production"
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitUPM int64 // units per minute, default: 100000
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		GroqAPIKey:           os.Getenv("GROQ_API_KEY"),
		OllamaBaseURL:        os.Getenv("OLLAMA_BASE_URL"),
		DeepgramAPIKey:       os.Getenv("DEEPGRAM_API_KEY"),
		ElevenLabsAPIKey:     os.Getenv("ELEVENLABS_API_KEY"),
		VoyageAPIKey:         os.Getenv("VOYAGE_API_KEY"),
		RunwayAPIKey:         os.Getenv("RUNWAY_API_KEY"),
		FalAPIKey:            os.Getenv("FAL_KEY"),
		PerspectiveAPIKey:    os.Getenv("PERSPECTIVE_API_KEY"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	timeoutStr := getEnv("PROVIDER_TIMEOUT_SECONDS", "60")
	timeoutSec, err := strconv.Atoi(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT_SECONDS: %w", err)
	}
	cfg.ProviderTimeout = time.Duration(timeoutSec) * time.Second

	upmStr := getEnv("DEFAULT_RATE_LIMIT_UPM", "100000")
	upm, err := strconv.ParseInt(upmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_UPM: %w", err)
	}
	cfg.DefaultRateLimitUPM = upm

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
