package proxy

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wapsol/llmhub/internal/dispatch"
	"github.com/wapsol/llmhub/internal/ledger"
	"github.com/wapsol/llmhub/internal/provider"
)

type fakeAdapter struct {
	name   string
	result *provider.Result
	err    error
}

func (f *fakeAdapter) Name() string                   { return f.name }
func (f *fakeAdapter) IsAvailable() bool              { return true }
func (f *fakeAdapter) Models() []string               { return []string{"fake-model"} }
func (f *fakeAdapter) Descriptor() provider.Descriptor {
	return provider.Descriptor{Name: f.name}
}
func (f *fakeAdapter) EstimateCost(model string, in, out int) float64 { return 0 }
func (f *fakeAdapter) Invoke(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type memStore struct {
	records   []*ledger.Record
	appendErr error
	cost      float64
}

func (m *memStore) Append(ctx context.Context, rec *ledger.Record) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) Summary(ctx context.Context, clientID string, w ledger.Window) (*ledger.Summary, error) {
	return &ledger.Summary{ClientID: clientID}, nil
}

func (m *memStore) WindowCost(ctx context.Context, clientID string, w ledger.Window) (float64, error) {
	return m.cost, nil
}

func newTestInvoker(adapter provider.Adapter, store ledger.Store) *Invoker {
	registry := provider.NewRegistry()
	registry.Register(func(provider.Config) provider.Adapter { return adapter })
	registry.Configure(adapter.Name(), provider.Config{})
	dispatcher := dispatch.New(registry)
	return NewInvoker(registry, dispatcher, store, 5*time.Second, otel.Tracer("test"))
}

func TestInvoke_SuccessRecordsLedgerRow(t *testing.T) {
	adapter := &fakeAdapter{
		name: "anthropic",
		result: &provider.Result{
			Content:       provider.TextContent{Text: "ok"},
			InputUnits:    100,
			OutputUnits:   50,
			CostUSD:       0.0045,
			InputCostUSD:  0.003,
			OutputCostUSD: 0.0015,
		},
	}
	store := &memStore{}
	inv := newTestInvoker(adapter, store)

	req := &provider.Request{Category: provider.CategoryText, Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	out, err := inv.Invoke(context.Background(), "client-1", "req-1", req, "anthropic", "fake-model", 0)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("Expected 1 ledger row, got %d", len(store.records))
	}
	rec := store.records[0]
	if !rec.Success {
		t.Error("Expected success record")
	}
	if rec.InputCostUSD != 0.003 || rec.OutputCostUSD != 0.0015 {
		t.Errorf("Expected natural cost split, got %v/%v", rec.InputCostUSD, rec.OutputCostUSD)
	}
	if rec.ClientID != "client-1" || rec.RequestID != "req-1" {
		t.Errorf("Record identity wrong: %s/%s", rec.ClientID, rec.RequestID)
	}
	if out.Provider != "anthropic" {
		t.Errorf("Expected provider anthropic, got %s", out.Provider)
	}
}

func TestInvoke_FailureStillRecordsRow(t *testing.T) {
	adapter := &fakeAdapter{
		name: "anthropic",
		err:  provider.Upstream("anthropic", 429, "rate limited"),
	}
	store := &memStore{}
	inv := newTestInvoker(adapter, store)

	req := &provider.Request{Category: provider.CategoryText, Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	_, err := inv.Invoke(context.Background(), "client-1", "req-2", req, "anthropic", "fake-model", 0)
	if err == nil {
		t.Fatal("Expected invocation error")
	}

	if len(store.records) != 1 {
		t.Fatalf("Expected 1 ledger row for failed attempt, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.Success {
		t.Error("Expected failure record")
	}
	if rec.ErrorType != string(provider.CodeUpstreamError) {
		t.Errorf("Expected upstream_error type, got %s", rec.ErrorType)
	}
	if rec.InputCostUSD != 0 || rec.OutputCostUSD != 0 {
		t.Error("Failed attempt must have zero cost")
	}
}

func TestInvoke_UnconfiguredProviderRecordsRow(t *testing.T) {
	adapter := &fakeAdapter{name: "anthropic"}
	store := &memStore{}
	registry := provider.NewRegistry()
	registry.Register(func(provider.Config) provider.Adapter { return adapter })
	// Known but never configured: the attempt still bills.
	dispatcher := dispatch.New(registry)
	inv := NewInvoker(registry, dispatcher, store, 5*time.Second, otel.Tracer("test"))

	req := &provider.Request{Category: provider.CategoryText, Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	_, err := inv.Invoke(context.Background(), "client-1", "req-5", req, "anthropic", "fake-model", 0)
	if provider.Classify(err) != provider.CodeNotConfigured {
		t.Fatalf("Expected not_configured, got %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("Expected 1 ledger row for the failed attempt, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.Success {
		t.Error("Expected failure record")
	}
	if rec.ErrorType != string(provider.CodeNotConfigured) {
		t.Errorf("Expected not_configured type, got %s", rec.ErrorType)
	}
	if rec.Provider != "anthropic" || rec.Model != "fake-model" {
		t.Errorf("Record routing wrong: %s/%s", rec.Provider, rec.Model)
	}
}

func TestInvoke_LedgerWriteFailureDoesNotMaskResult(t *testing.T) {
	adapter := &fakeAdapter{
		name:   "anthropic",
		result: &provider.Result{Content: provider.TextContent{Text: "ok"}, InputUnits: 1, CostUSD: 0.001},
	}
	store := &memStore{appendErr: errors.New("connection refused")}
	inv := newTestInvoker(adapter, store)

	req := &provider.Request{Category: provider.CategoryText, Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	out, err := inv.Invoke(context.Background(), "client-1", "req-3", req, "anthropic", "fake-model", 0)
	if err != nil {
		t.Fatalf("Ledger failure must not fail the invocation: %v", err)
	}
	if out.Result == nil {
		t.Fatal("Expected result despite ledger failure")
	}
}

func TestInvoke_ProportionalSplitWhenNoNaturalDivision(t *testing.T) {
	adapter := &fakeAdapter{
		name: "deepgram",
		result: &provider.Result{
			Content:    provider.TranscriptContent{Text: "hi", DurationSeconds: 60},
			InputUnits: 6000,
			CostUSD:    0.0043,
		},
	}
	store := &memStore{}
	inv := newTestInvoker(adapter, store)

	req := &provider.Request{Category: provider.CategoryTranscription, MediaURL: "https://example.com/a.wav"}
	_, err := inv.Invoke(context.Background(), "client-1", "req-4", req, "deepgram", "fake-model", 0)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	rec := store.records[0]
	// All units are input units, so the whole cost lands on input.
	if rec.InputCostUSD != 0.0043 || rec.OutputCostUSD != 0 {
		t.Errorf("Expected 0.0043/0 split, got %v/%v", rec.InputCostUSD, rec.OutputCostUSD)
	}
}

func TestInvoke_BudgetAlertAttached(t *testing.T) {
	adapter := &fakeAdapter{
		name:   "anthropic",
		result: &provider.Result{Content: provider.TextContent{Text: "ok"}, InputUnits: 1, CostUSD: 0.001},
	}
	store := &memStore{cost: 95} // 95% of a 100 budget
	inv := newTestInvoker(adapter, store)

	req := &provider.Request{Category: provider.CategoryText, Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	out, err := inv.Invoke(context.Background(), "client-1", "req-5", req, "anthropic", "fake-model", 100)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out.Alert == nil {
		t.Fatal("Expected budget alert at 95% spend")
	}
	if out.Alert.Level != ledger.AlertCritical {
		t.Errorf("Expected CRITICAL alert, got %s", out.Alert.Level)
	}
}

func TestInvoke_NoProviderConfigured(t *testing.T) {
	registry := provider.NewRegistry()
	dispatcher := dispatch.New(registry)
	store := &memStore{}
	inv := NewInvoker(registry, dispatcher, store, time.Second, otel.Tracer("test"))

	req := &provider.Request{Category: provider.CategoryText}
	_, err := inv.Invoke(context.Background(), "client-1", "req-6", req, "", "", 0)
	if provider.Classify(err) != provider.CodeNoProviderConfigured {
		t.Errorf("Expected no_provider_configured, got %v", err)
	}
	if len(store.records) != 0 {
		t.Error("Dispatch failure should not write a ledger row")
	}
}
