package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/wapsol/llmhub/internal/pricing"
)

// memStore is an in-memory Store for exercising the budget and
// aggregation logic without a database.
type memStore struct {
	records []Record
}

func (m *memStore) Append(ctx context.Context, rec *Record) error {
	rec.ID = fmt.Sprintf("rec-%d", len(m.records)+1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.records = append(m.records, *rec)
	return nil
}

func (m *memStore) Summary(ctx context.Context, clientID string, w Window) (*Summary, error) {
	s := &Summary{ClientID: clientID, From: w.From, To: w.To, Daily: []DailyUsage{}}
	for _, r := range m.records {
		if r.ClientID != clientID || r.CreatedAt.Before(w.From) || !r.CreatedAt.Before(w.To) {
			continue
		}
		s.TotalCalls++
		s.TotalUnits += int64(r.InputUnits + r.OutputUnits)
		s.TotalCost += r.TotalCostUSD()
	}
	return s, nil
}

func (m *memStore) WindowCost(ctx context.Context, clientID string, w Window) (float64, error) {
	var total float64
	for _, r := range m.records {
		if r.ClientID != clientID || r.CreatedAt.Before(w.From) || !r.CreatedAt.Before(w.To) {
			continue
		}
		total += r.TotalCostUSD()
	}
	return total, nil
}

// fixedCostStore reports a canned month cost.
type fixedCostStore struct {
	memStore
	cost float64
}

func (f *fixedCostStore) WindowCost(ctx context.Context, clientID string, w Window) (float64, error) {
	return f.cost, nil
}

func TestCheckBudget_Thresholds(t *testing.T) {
	cases := []struct {
		cost  float64
		level AlertLevel
		none  bool
	}{
		{79.99, "", true},
		{80.00, AlertWarning, false},
		{90.00, AlertCritical, false},
		{100.01, AlertExceeded, false},
	}

	w := MonthWindow(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	for _, tc := range cases {
		store := &fixedCostStore{cost: tc.cost}
		alert, err := CheckBudget(context.Background(), store, "client-1", 100, w)
		if err != nil {
			t.Fatalf("CheckBudget failed: %v", err)
		}
		if tc.none {
			if alert != nil {
				t.Errorf("cost=%v: expected no alert, got %+v", tc.cost, alert)
			}
			continue
		}
		if alert == nil {
			t.Errorf("cost=%v: expected %s alert, got none", tc.cost, tc.level)
			continue
		}
		if alert.Level != tc.level {
			t.Errorf("cost=%v: expected level %s, got %s", tc.cost, tc.level, alert.Level)
		}
	}
}

func TestCheckBudget_NoBudgetConfigured(t *testing.T) {
	store := &fixedCostStore{cost: 500}
	alert, err := CheckBudget(context.Background(), store, "client-1", 0, MonthWindow(time.Now()))
	if err != nil {
		t.Fatalf("CheckBudget failed: %v", err)
	}
	if alert != nil {
		t.Errorf("Expected nil alert without a budget, got %+v", alert)
	}
}

func TestAppendOnly_CountsEveryAttempt(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	// Mix of successes and failures: every attempt is its own row.
	for i := 0; i < 5; i++ {
		rec := &Record{
			ClientID:      "client-1",
			Endpoint:      "/v2/text/generate",
			Provider:      "anthropic",
			Model:         "claude-3-5-sonnet-20241022",
			CreatedAt:     now.Add(time.Duration(i) * time.Minute),
			Success:       i%2 == 0,
			InputCostUSD:  0.001,
			OutputCostUSD: 0.002,
			LatencyMs:     120,
		}
		if !rec.Success {
			rec.ErrorType = "upstream_error"
			rec.ErrorMessage = "rate limited"
		}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if rec.ID == "" {
			t.Error("Append must assign an id")
		}
	}

	s, err := store.Summary(ctx, "client-1", Window{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.TotalCalls != 5 {
		t.Errorf("Expected 5 calls regardless of success mix, got %d", s.TotalCalls)
	}
}

func TestSummary_EmptyWindowIsZeroNotNull(t *testing.T) {
	store := &memStore{}
	s, err := store.Summary(context.Background(), "client-1", MonthWindow(time.Now()))
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.TotalCalls != 0 || s.TotalCost != 0 {
		t.Errorf("Empty window must aggregate to zero, got %+v", s)
	}
	if s.Daily == nil {
		t.Error("Daily breakdown must be an empty slice, not nil")
	}
}

func TestMonthWindow(t *testing.T) {
	w := MonthWindow(time.Date(2025, 3, 15, 23, 30, 0, 0, time.UTC))
	if !w.From.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected window start %v", w.From)
	}
	if !w.To.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected window end %v", w.To)
	}
}

func TestRecord_TotalCost(t *testing.T) {
	rec := &Record{InputCostUSD: 0.000123, OutputCostUSD: 0.000456}
	if got := rec.TotalCostUSD(); got != pricing.Round6(0.000579) {
		t.Errorf("Expected 0.000579, got %v", got)
	}
}
