// Package ledger is the append-only billing record of every invocation
// attempt. One row per attempt, success or failure; rows are never
// updated or deleted, and each retry is its own row. The ledger
// records attempts, not logical operations.
package ledger

import (
	"context"
	"math"
	"time"

	"github.com/wapsol/llmhub/internal/pricing"
)

// Record is one invocation attempt. InputCostUSD + OutputCostUSD must
// equal the cost reported by the invocation (split proportionally to
// units when the billing has no natural input/output division).
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ClientID  string    `json:"client_id"`
	RequestID string    `json:"request_id"`
	Endpoint  string    `json:"endpoint"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`

	InputUnits  int `json:"input_units"`
	OutputUnits int `json:"output_units"`

	InputCostUSD  float64 `json:"input_cost_usd"`
	OutputCostUSD float64 `json:"output_cost_usd"`

	LatencyMs int64 `json:"latency_ms"`
	Success   bool  `json:"success"`

	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	RequestMetadata  map[string]any `json:"request_metadata,omitempty"`
	ResponseMetadata map[string]any `json:"response_metadata,omitempty"`
}

// TotalCostUSD is the combined cost of the attempt.
func (r *Record) TotalCostUSD() float64 {
	return pricing.Round6(r.InputCostUSD + r.OutputCostUSD)
}

// Window is an explicit time range. Budget and summary queries take a
// window rather than reading the wall clock, so they stay deterministic
// under test.
type Window struct {
	From time.Time
	To   time.Time
}

// MonthWindow returns the calendar month containing t.
func MonthWindow(t time.Time) Window {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Window{From: start, To: start.AddDate(0, 1, 0)}
}

// DailyUsage is one row of the per-day aggregation view.
type DailyUsage struct {
	Date        time.Time `json:"date"`
	Provider    string    `json:"provider"`
	Endpoint    string    `json:"endpoint"`
	Calls       int       `json:"call_count"`
	TotalUnits  int64     `json:"total_units"`
	TotalCost   float64   `json:"total_cost_usd"`
	AvgLatency  float64   `json:"avg_latency_ms"`
	SuccessRate float64   `json:"success_rate"`
}

// Summary aggregates a client's ledger rows over a window. Gaps in the
// window contribute zero, never null; failed attempts count toward
// Calls like any other row.
type Summary struct {
	ClientID   string       `json:"client_id"`
	From       time.Time    `json:"from"`
	To         time.Time    `json:"to"`
	TotalCalls int          `json:"total_calls"`
	TotalUnits int64        `json:"total_units"`
	TotalCost  float64      `json:"total_cost_usd"`
	Daily      []DailyUsage `json:"daily_breakdown"`
}

// Store is the persistence boundary. Insert and read only; no update
// path exists.
type Store interface {
	// Append writes one record and fills in its generated id and
	// timestamp. Concurrent appends never conflict.
	Append(ctx context.Context, rec *Record) error

	// Summary aggregates rows for a client over a window.
	Summary(ctx context.Context, clientID string, w Window) (*Summary, error)

	// WindowCost sums total cost for a client over a window.
	WindowCost(ctx context.Context, clientID string, w Window) (float64, error)
}

// AlertLevel orders budget severities.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "WARNING"  // >= 80% of budget
	AlertCritical AlertLevel = "CRITICAL" // >= 90%
	AlertExceeded AlertLevel = "EXCEEDED" // >= 100%
)

// Alert is derived on demand, never stored.
type Alert struct {
	Level           AlertLevel `json:"level"`
	MonthlyBudget   float64    `json:"monthly_budget_usd"`
	CurrentCost     float64    `json:"current_cost_usd"`
	UsagePercent    float64    `json:"usage_percentage"`
	RemainingBudget float64    `json:"remaining_budget_usd"`
}

// CheckBudget compares a client's spend over the window against its
// monthly budget. Returns nil when no budget is set or usage is below
// the warning threshold. Pure read; safe on every request.
func CheckBudget(ctx context.Context, store Store, clientID string, budgetUSD float64, w Window) (*Alert, error) {
	if budgetUSD <= 0 {
		return nil, nil
	}
	cost, err := store.WindowCost(ctx, clientID, w)
	if err != nil {
		return nil, err
	}
	pct := cost / budgetUSD * 100
	var level AlertLevel
	switch {
	case pct >= 100:
		level = AlertExceeded
	case pct >= 90:
		level = AlertCritical
	case pct >= 80:
		level = AlertWarning
	default:
		return nil, nil
	}
	return &Alert{
		Level:           level,
		MonthlyBudget:   budgetUSD,
		CurrentCost:     cost,
		UsagePercent:    round2(pct),
		RemainingBudget: round2(budgetUSD - cost),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
