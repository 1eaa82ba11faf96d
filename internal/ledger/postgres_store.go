package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO usage_records (
			client_id, request_id, endpoint, provider, model,
			input_units, output_units, input_cost_usd, output_cost_usd,
			latency_ms, success, error_type, error_message,
			request_metadata, response_metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		rec.ClientID, rec.RequestID, rec.Endpoint, rec.Provider, rec.Model,
		rec.InputUnits, rec.OutputUnits, rec.InputCostUSD, rec.OutputCostUSD,
		rec.LatencyMs, rec.Success, nullable(rec.ErrorType), nullable(rec.ErrorMessage),
		rec.RequestMetadata, rec.ResponseMetadata,
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}

	return nil
}

func (s *PostgresStore) Summary(ctx context.Context, clientID string, w Window) (*Summary, error) {
	query := `
		SELECT
			date_trunc('day', created_at) AS day,
			provider,
			endpoint,
			COUNT(*) AS call_count,
			COALESCE(SUM(input_units + output_units), 0) AS total_units,
			COALESCE(SUM(input_cost_usd + output_cost_usd), 0) AS total_cost,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms,
			COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0) AS success_rate
		FROM usage_records
		WHERE client_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY day, provider, endpoint
		ORDER BY day DESC, provider
	`
	rows, err := s.db.Query(ctx, query, clientID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer rows.Close()

	summary := &Summary{
		ClientID: clientID,
		From:     w.From,
		To:       w.To,
		Daily:    []DailyUsage{},
	}

	for rows.Next() {
		var d DailyUsage
		var day time.Time
		err := rows.Scan(
			&day, &d.Provider, &d.Endpoint,
			&d.Calls, &d.TotalUnits, &d.TotalCost,
			&d.AvgLatency, &d.SuccessRate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		d.Date = day
		summary.Daily = append(summary.Daily, d)
		summary.TotalCalls += d.Calls
		summary.TotalUnits += d.TotalUnits
		summary.TotalCost += d.TotalCost
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}

	return summary, nil
}

func (s *PostgresStore) WindowCost(ctx context.Context, clientID string, w Window) (float64, error) {
	query := `
		SELECT COALESCE(SUM(input_cost_usd + output_cost_usd), 0)
		FROM usage_records
		WHERE client_id = $1 AND created_at >= $2 AND created_at < $3
	`
	var total float64
	err := s.db.QueryRow(ctx, query, clientID, w.From, w.To).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum window cost: %w", err)
	}

	return total, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
