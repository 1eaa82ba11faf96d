package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetByKey(ctx context.Context, key string) (*Client, error) {
	query := `
		SELECT id, name, key_hash, rate_limit, COALESCE(monthly_budget_usd, 0), active, created_at
		FROM api_clients
		WHERE key_hash = $1 AND active = true
	`

	var c Client
	err := s.db.QueryRow(ctx, query, HashKey(key)).Scan(
		&c.ID, &c.Name, &c.KeyHash, &c.RateLimit, &c.MonthlyBudgetUSD, &c.Active, &c.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	return &c, nil
}

func (s *PostgresStore) Create(ctx context.Context, client *Client) error {
	if client.KeyHash == "" {
		return fmt.Errorf("key_hash is required")
	}

	query := `
		INSERT INTO api_clients (name, key_hash, rate_limit, monthly_budget_usd, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		client.Name, client.KeyHash, client.RateLimit, client.MonthlyBudgetUSD, client.Active,
	).Scan(&client.ID, &client.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, clientID string) error {
	query := `UPDATE api_clients SET active = false WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, clientID)
	if err != nil {
		return fmt.Errorf("failed to revoke api client: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}

	return nil
}
