package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrClientNotFound = errors.New("api client not found")

// Client is a registered consumer of the gateway, identified by a
// hashed API key. MonthlyBudgetUSD of zero means no budget configured.
type Client struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	KeyHash          string    `json:"key_hash"`
	RateLimit        int64     `json:"rate_limit"` // max units per minute
	MonthlyBudgetUSD float64   `json:"monthly_budget_usd"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (c *Client) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (c *Client) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, c)
}

type Store interface {
	GetByKey(ctx context.Context, key string) (*Client, error)
	Create(ctx context.Context, client *Client) error
	Revoke(ctx context.Context, clientID string) error
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	clientKey    contextKey = "api_client"
	requestIDKey contextKey = "request_id"
)

func HashKey(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

func NewMiddleware(store Store, cache *redis.Client) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized: missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			key := strings.TrimPrefix(authHeader, "Bearer ")

			redisKey := fmt.Sprintf("auth:%s", HashKey(key))

			var cached Client
			err := cache.Get(ctx, redisKey).Scan(&cached)
			if err == nil {
				ctx = context.WithValue(ctx, clientKey, &cached)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			} else if err != redis.Nil {
				log.Warn().Err(err).Msg("auth cache error")
			}

			client, err := store.GetByKey(ctx, key)
			if err != nil {
				if errors.Is(err, ErrClientNotFound) {
					http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			// Cache the result for 5 minutes
			_ = cache.Set(ctx, redisKey, client, 5*time.Minute).Err()

			ctx = context.WithValue(ctx, clientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClient returns the authenticated client from the request context.
func GetClient(ctx context.Context) *Client {
	if c, ok := ctx.Value(clientKey).(*Client); ok {
		return c
	}
	return nil
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Helpers for testing
func WithClient(ctx context.Context, client *Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
