package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/wapsol/llmhub/config"
	"github.com/wapsol/llmhub/internal/auth"
	"github.com/wapsol/llmhub/internal/dispatch"
	"github.com/wapsol/llmhub/internal/ledger"
	"github.com/wapsol/llmhub/internal/provider"
	"github.com/wapsol/llmhub/internal/provider/anthropic"
	"github.com/wapsol/llmhub/internal/provider/deepgram"
	"github.com/wapsol/llmhub/internal/provider/elevenlabs"
	"github.com/wapsol/llmhub/internal/provider/groq"
	"github.com/wapsol/llmhub/internal/provider/ollama"
	"github.com/wapsol/llmhub/internal/provider/openai"
	"github.com/wapsol/llmhub/internal/provider/perspective"
	"github.com/wapsol/llmhub/internal/provider/pika"
	"github.com/wapsol/llmhub/internal/provider/runway"
	"github.com/wapsol/llmhub/internal/provider/voyage"
	"github.com/wapsol/llmhub/internal/proxy"
	"github.com/wapsol/llmhub/internal/seeder"
	"github.com/wapsol/llmhub/internal/telemetry"
	"github.com/wapsol/llmhub/pkg/ratelimit"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("llmhub", cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping postgres")
	}
	log.Info().Msg("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping redis")
	}
	log.Info().Msg("Redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb)

	// 6. Init ledger
	store := ledger.NewPostgresStore(pool)

	// 7. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitUPM)

	// 8. Register and configure providers
	registry := provider.NewRegistry()
	for _, ctor := range []provider.Constructor{
		anthropic.New,
		openai.New,
		groq.New,
		ollama.New,
		deepgram.New,
		elevenlabs.New,
		voyage.New,
		runway.New,
		pika.New,
		perspective.New,
	} {
		registry.Register(ctor)
	}

	timeout := cfg.ProviderTimeout
	registry.Configure("anthropic", provider.Config{APIKey: cfg.AnthropicAPIKey, Timeout: timeout})
	registry.Configure("openai", provider.Config{APIKey: cfg.OpenAIAPIKey, Timeout: timeout})
	registry.Configure("groq", provider.Config{APIKey: cfg.GroqAPIKey, Timeout: timeout})
	registry.Configure("ollama", provider.Config{BaseURL: cfg.OllamaBaseURL, Timeout: timeout})
	registry.Configure("deepgram", provider.Config{APIKey: cfg.DeepgramAPIKey, Timeout: timeout})
	registry.Configure("elevenlabs", provider.Config{APIKey: cfg.ElevenLabsAPIKey, Timeout: timeout})
	registry.Configure("voyage", provider.Config{APIKey: cfg.VoyageAPIKey, Timeout: timeout})
	registry.Configure("runway", provider.Config{APIKey: cfg.RunwayAPIKey, Timeout: timeout})
	registry.Configure("pika", provider.Config{APIKey: cfg.FalAPIKey, Timeout: timeout})
	registry.Configure("perspective", provider.Config{APIKey: cfg.PerspectiveAPIKey, Timeout: timeout})
	log.Info().Strs("available", registry.Available()).Msg("providers configured")

	// 9. Init dispatcher and invoker
	dispatcher := dispatch.New(registry)
	tracer := otel.GetTracerProvider().Tracer("llmhub")
	invoker := proxy.NewInvoker(registry, dispatcher, store, cfg.ProviderTimeout, tracer)

	// 10. Init handler
	handler := proxy.NewHandler(invoker, registry, store, limiter)

	// 11. Seed test client if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestClient(ctx, authStore)
	}

	// 12. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"llmhub"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v2/text/generate", handler.HandleText)
		r.Post("/v2/audio/transcriptions", handler.HandleTranscription)
		r.Post("/v2/audio/speech", handler.HandleSpeech)
		r.Post("/v2/embeddings", handler.HandleEmbeddings)
		r.Post("/v2/rerank", handler.HandleRerank)
		r.Post("/v2/images/generations", handler.HandleImage)
		r.Post("/v2/video/generations", handler.HandleVideo)
		r.Post("/v2/moderations", handler.HandleModeration)
		r.Get("/v1/usage", handler.HandleUsage)
		r.Get("/v1/budget", handler.HandleBudget)
		r.Get("/v1/providers", handler.HandleProviders)
	})

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("llmhub gateway starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
