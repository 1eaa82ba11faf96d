package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wapsol/llmhub/internal/dispatch"
	"github.com/wapsol/llmhub/internal/ledger"
	"github.com/wapsol/llmhub/internal/pricing"
	"github.com/wapsol/llmhub/internal/provider"
)

// Invocation is the outcome of a single routed call: the provider result
// (nil on failure), the resolved provider and model, and the ledger row
// that was recorded for the attempt.
type Invocation struct {
	Provider string
	Model    string
	Result   *provider.Result
	Record   *ledger.Record
	Alert    *ledger.Alert
}

// Invoker routes a request to a provider adapter, executes it behind a
// circuit breaker, and records one ledger row per attempt, success or not.
type Invoker struct {
	registry   *provider.Registry
	dispatcher *dispatch.Dispatcher
	store      ledger.Store
	breakers   map[string]*gobreaker.CircuitBreaker
	timeout    time.Duration
	tracer     trace.Tracer
}

func NewInvoker(registry *provider.Registry, dispatcher *dispatch.Dispatcher, store ledger.Store, timeout time.Duration, tracer trace.Tracer) *Invoker {
	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, name := range registry.Known() {
		settings := gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		breakers[name] = gobreaker.NewCircuitBreaker(settings)
	}
	return &Invoker{
		registry:   registry,
		dispatcher: dispatcher,
		store:      store,
		breakers:   breakers,
		timeout:    timeout,
		tracer:     tracer,
	}
}

// Invoke resolves the provider and model, executes the call, and appends
// the usage row before returning. The returned error is the invocation
// error; a ledger write failure is logged but never replaces it.
func (inv *Invoker) Invoke(ctx context.Context, clientID, requestID string, req *provider.Request, explicitProvider, explicitModel string, budgetUSD float64) (*Invocation, error) {
	providerName, model, err := inv.dispatcher.Select(req.Category, explicitProvider, explicitModel)
	if err != nil {
		return nil, err
	}
	req.Model = model

	ctx, span := inv.tracer.Start(ctx, "invoke."+string(req.Category))
	defer span.End()
	span.SetAttributes(
		attribute.String("client_id", clientID),
		attribute.String("request_id", requestID),
		attribute.String("provider", providerName),
		attribute.String("model", model),
	)

	// A known-but-unconfigured provider still counts as an attempt; the
	// failure is recorded like any other invocation error.
	var result *provider.Result
	var invokeErr error
	started := time.Now()
	if adapter := inv.registry.Lookup(providerName); adapter != nil {
		result, invokeErr = inv.execute(ctx, adapter, req)
	} else {
		invokeErr = provider.NotConfigured(providerName, "provider is not configured")
	}
	latencyMs := time.Since(started).Milliseconds()

	record := inv.buildRecord(clientID, requestID, providerName, req, result, invokeErr, latencyMs)

	// The row is written before the response goes out. A failed write is
	// logged with the full row so it can be replayed; it never masks the
	// invocation outcome.
	if err := inv.store.Append(ctx, record); err != nil {
		log.Error().
			Err(err).
			Str("client_id", clientID).
			Str("request_id", requestID).
			Str("provider", providerName).
			Float64("cost_usd", record.TotalCostUSD()).
			Msg("usage record write failed")
	}

	out := &Invocation{Provider: providerName, Model: model, Result: result, Record: record}

	if invokeErr == nil && budgetUSD > 0 {
		alert, err := ledger.CheckBudget(ctx, inv.store, clientID, budgetUSD, ledger.MonthWindow(time.Now()))
		if err != nil {
			log.Warn().Err(err).Str("client_id", clientID).Msg("budget check failed")
		} else {
			out.Alert = alert
		}
	}

	if invokeErr != nil {
		span.SetAttributes(attribute.String("error_code", string(provider.Classify(invokeErr))))
		return out, invokeErr
	}

	span.SetAttributes(attribute.Float64("cost_usd", result.CostUSD))
	return out, nil
}

func (inv *Invoker) execute(ctx context.Context, adapter provider.Adapter, req *provider.Request) (*provider.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	cb := inv.breakers[adapter.Name()]
	if cb == nil {
		return adapter.Invoke(ctx, req)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return adapter.Invoke(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, provider.Upstream(adapter.Name(), 0, "provider circuit breaker is open")
		}
		return nil, err
	}
	return result.(*provider.Result), nil
}

func (inv *Invoker) buildRecord(clientID, requestID, providerName string, req *provider.Request, result *provider.Result, invokeErr error, latencyMs int64) *ledger.Record {
	record := &ledger.Record{
		ClientID:  clientID,
		RequestID: requestID,
		Endpoint:  string(req.Category),
		Provider:  providerName,
		Model:     req.Model,
		LatencyMs: latencyMs,
		Success:   invokeErr == nil,
	}

	if invokeErr != nil {
		record.ErrorType = string(provider.Classify(invokeErr))
		record.ErrorMessage = invokeErr.Error()
		return record
	}

	record.InputUnits = result.InputUnits
	record.OutputUnits = result.OutputUnits

	inputCost, outputCost := result.InputCostUSD, result.OutputCostUSD
	if inputCost == 0 && outputCost == 0 && result.CostUSD > 0 {
		inputCost, outputCost = pricing.Split(result.CostUSD, result.InputUnits, result.OutputUnits)
	}
	record.InputCostUSD = inputCost
	record.OutputCostUSD = outputCost
	record.ResponseMetadata = result.Metadata
	return record
}
