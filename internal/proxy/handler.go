package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wapsol/llmhub/internal/auth"
	"github.com/wapsol/llmhub/internal/ledger"
	"github.com/wapsol/llmhub/internal/provider"
	"github.com/wapsol/llmhub/pkg/ratelimit"
)

type Handler struct {
	invoker  *Invoker
	registry *provider.Registry
	store    ledger.Store
	limiter  *ratelimit.Limiter
}

func NewHandler(invoker *Invoker, registry *provider.Registry, store ledger.Store, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		invoker:  invoker,
		registry: registry,
		store:    store,
		limiter:  limiter,
	}
}

// invokeRequest is the uniform request body across every operation
// endpoint. Fields that don't apply to the endpoint's category are
// ignored.
type invokeRequest struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	Messages []provider.Message `json:"messages,omitempty"`
	System   string             `json:"system,omitempty"`

	MediaURL  string   `json:"media_url,omitempty"`
	Input     string   `json:"input,omitempty"`
	Texts     []string `json:"texts,omitempty"`
	Query     string   `json:"query,omitempty"`
	Documents []string `json:"documents,omitempty"`
	Prompt    string   `json:"prompt,omitempty"`

	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

func (h *Handler) HandleText(w http.ResponseWriter, r *http.Request) {
	h.handleInvoke(w, r, provider.CategoryText)
}

func (h *Handler) HandleTranscription(w http.ResponseWriter, r *http.Request) {
	h.handleInvoke(w, r, provider.CategoryTranscription)
}

func (h *Handler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	h.handleInvoke(w, r, provider.CategorySpeech)
}

func (h *Handler) HandleEmbeddings(w http.ResponseWriter, r *http.Request) {
	h.handleInvoke(w, r, provider.CategoryEmbedding)
}

func (h *Handler) HandleRerank(w http.ResponseWriter, r *http.Request) {
	h.handleInvoke(w, r, provider.CategoryRerank)
}

func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	h.handleInvoke(w, r, provider.CategoryImage)
}

func (h *Handler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	h.handleInvoke(w, r, provider.CategoryVideo)
}

func (h *Handler) HandleModeration(w http.ResponseWriter, r *http.Request) {
	h.handleInvoke(w, r, provider.CategoryModeration)
}

func (h *Handler) handleInvoke(w http.ResponseWriter, r *http.Request, category provider.Category) {
	ctx := r.Context()

	client := auth.GetClient(ctx)
	if client == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID := auth.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var body invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	estimatedUnits := body.MaxTokens
	if estimatedUnits <= 0 {
		estimatedUnits = 1000
	}
	allowed, err := h.limiter.Allow(ctx, client.ID, estimatedUnits)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	req := &provider.Request{
		Category:    category,
		Messages:    body.Messages,
		System:      body.System,
		MediaURL:    body.MediaURL,
		Input:       body.Input,
		Texts:       body.Texts,
		Query:       body.Query,
		Documents:   body.Documents,
		Prompt:      body.Prompt,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		Options:     body.Options,
	}

	invocation, err := h.invoker.Invoke(ctx, client.ID, requestID, req, body.Provider, body.Model, client.MonthlyBudgetUSD)
	if err != nil {
		writeProviderError(w, err)
		return
	}

	resp := map[string]any{
		"request_id": requestID,
		"provider":   invocation.Provider,
		"model":      invocation.Model,
		"content":    invocation.Result.Content,
		"usage": map[string]any{
			"input_units":  invocation.Result.InputUnits,
			"output_units": invocation.Result.OutputUnits,
			"cost_usd":     invocation.Record.TotalCostUSD(),
		},
	}
	if invocation.Alert != nil {
		resp["budget_alert"] = invocation.Alert
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := auth.GetClient(ctx)
	if client == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	window, err := windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.store.Summary(ctx, client.ID, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := auth.GetClient(ctx)
	if client == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	window := ledger.MonthWindow(time.Now())
	cost, err := h.store.WindowCost(ctx, client.ID, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"client_id":          client.ID,
		"monthly_budget_usd": client.MonthlyBudgetUSD,
		"spent_usd":          cost,
		"from":               window.From,
		"to":                 window.To,
	}

	alert, err := ledger.CheckBudget(ctx, h.store, client.ID, client.MonthlyBudgetUSD, window)
	if err == nil && alert != nil {
		resp["alert"] = alert
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	type providerInfo struct {
		provider.Descriptor
		Available bool     `json:"available"`
		Models    []string `json:"models,omitempty"`
	}

	infos := []providerInfo{}
	for _, name := range h.registry.Known() {
		info := providerInfo{Available: h.registry.IsAvailable(name)}
		if adapter := h.registry.Lookup(name); adapter != nil {
			info.Descriptor = adapter.Descriptor()
			info.Models = adapter.Models()
		} else {
			info.Descriptor = provider.Descriptor{Name: name}
		}
		infos = append(infos, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{"providers": infos})
}

func windowFromQuery(r *http.Request) (ledger.Window, error) {
	now := time.Now()
	w := ledger.Window{From: now.AddDate(0, 0, -30), To: now}

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return ledger.Window{}, fmt.Errorf("invalid 'from' date format (use RFC3339)")
		}
		w.From = from
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return ledger.Window{}, fmt.Errorf("invalid 'to' date format (use RFC3339)")
		}
		w.To = to
	}
	return w, nil
}

// writeProviderError maps the error taxonomy onto HTTP statuses.
func writeProviderError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch provider.Classify(err) {
	case provider.CodeInvalidArgument:
		status = http.StatusBadRequest
	case provider.CodeNotConfigured, provider.CodeNoProviderConfigured:
		status = http.StatusServiceUnavailable
	case provider.CodeTimeout:
		status = http.StatusGatewayTimeout
	}

	body := map[string]any{"error": err.Error(), "code": string(provider.Classify(err))}
	var pe *provider.Error
	if errors.As(err, &pe) && pe.Subcode != "" {
		body["subcode"] = pe.Subcode
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
