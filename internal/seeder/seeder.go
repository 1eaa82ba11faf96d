package seeder

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wapsol/llmhub/internal/auth"
)

const TestAPIKey = "test-api-key-12345"

// SeedTestClient creates a development client with a generous rate limit
// and a small monthly budget so alert thresholds are easy to hit locally.
func SeedTestClient(ctx context.Context, store auth.Store) {
	client := &auth.Client{
		Name:             "local-dev",
		KeyHash:          auth.HashKey(TestAPIKey),
		RateLimit:        1000000,
		MonthlyBudgetUSD: 50,
		Active:           true,
	}

	if err := store.Create(ctx, client); err != nil {
		log.Info().Err(err).Msg("seeder: client may already exist, skipping")
		return
	}
	log.Info().
		Str("key", TestAPIKey).
		Str("client_id", client.ID).
		Msg("seeder: test client created")
}
