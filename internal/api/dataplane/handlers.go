// Package dataplane serves the invocation HTTP surface: synchronous
// dispatch, asynchronous begin/result, batches, health probes and metrics.
package dataplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/oriys/halo/internal/calltracker"
	"github.com/oriys/halo/internal/dispatch"
	"github.com/oriys/halo/internal/fault"
	"github.com/oriys/halo/internal/invoker"
	"github.com/oriys/halo/internal/logging"
	"github.com/oriys/halo/internal/metrics"
	"github.com/oriys/halo/internal/observability"
	"github.com/oriys/halo/internal/store"
	"golang.org/x/sync/errgroup"
)

// batchLimit caps how many invocations of one batch run concurrently.
const batchLimit = 8

// RecordStore is the read side of the invocation record trail.
type RecordStore interface {
	Ping(ctx context.Context) error
	ListInvocationRecords(ctx context.Context, operation string, limit int) ([]store.InvocationRecord, error)
	ListAllInvocationRecords(ctx context.Context, limit int) ([]store.InvocationRecord, error)
}

// Handler handles data plane HTTP requests.
type Handler struct {
	Dispatcher *dispatch.Dispatcher

	// Records is optional; without it the record endpoints report 501.
	Records RecordStore
}

// RegisterRoutes registers all data plane routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Invocation
	mux.HandleFunc("POST /operations/{name}/invoke", h.Invoke)
	mux.HandleFunc("POST /operations/{name}/begin", h.Begin)
	mux.HandleFunc("POST /invoke-batch", h.InvokeBatch)
	mux.HandleFunc("GET /invocations/{token}", h.CallResult)

	// Records
	mux.HandleFunc("GET /invocation-records", h.ListRecords)

	// Health probes
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)

	// Observability
	mux.Handle("GET /stats", metrics.Global().JSONHandler())
	mux.Handle("GET /metrics", metrics.PrometheusHandler())
}

// invokeBody is the request payload for invoke and begin.
type invokeBody struct {
	Inputs      []any  `json:"inputs"`
	Correlation string `json:"correlation"`
}

// invocationView is the JSON shape of a settled invocation.
type invocationView struct {
	Status      string       `json:"status"`
	Value       any          `json:"value,omitempty"`
	Outputs     []any        `json:"outputs"`
	Fault       *fault.Fault `json:"fault,omitempty"`
	Error       string       `json:"error,omitempty"`
	Correlation string       `json:"correlation"`
	DurationMs  int64        `json:"duration_ms"`
}

func viewFromOutcome(out invoker.Outcome, corr string) invocationView {
	view := invocationView{
		Status:      out.Status.String(),
		Outputs:     out.Outputs,
		Correlation: corr,
		DurationMs:  out.Duration.Milliseconds(),
	}
	switch out.Status {
	case invoker.StatusSucceeded:
		view.Value = out.Value
	case invoker.StatusFaulted:
		if f, ok := fault.From(out.Err); ok {
			view.Fault = f
		}
	case invoker.StatusFailed:
		if out.Err != nil {
			view.Error = out.Err.Error()
		}
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// dispatchError maps routing errors onto HTTP statuses.
func dispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrUnknownOperation), errors.Is(err, dispatch.ErrUnknownToken):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, dispatch.ErrOperationDisabled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, calltracker.ErrFull):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func decodeInvokeBody(w http.ResponseWriter, r *http.Request) (invokeBody, bool) {
	var body invokeBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return body, false
		}
	}
	return body, true
}

// Invoke handles POST /operations/{name}/invoke
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, ok := decodeInvokeBody(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx)).Debug(
		"invoke request", "operation", name)

	res, err := h.Dispatcher.Dispatch(ctx, name, body.Inputs, body.Correlation)
	if err != nil {
		dispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewFromOutcome(res.Outcome, res.Correlation))
}

// Begin handles POST /operations/{name}/begin
func (h *Handler) Begin(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, ok := decodeInvokeBody(w, r)
	if !ok {
		return
	}

	// The call outlives the request, so detach it from the request lifetime.
	token, err := h.Dispatcher.Begin(context.WithoutCancel(r.Context()), name, body.Inputs, body.Correlation)
	if err != nil {
		dispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"token": token})
}

// callView is the JSON shape of an asynchronous call's state.
type callView struct {
	Token     string          `json:"token"`
	Operation string          `json:"operation"`
	Settled   bool            `json:"settled"`
	Result    *invocationView `json:"result,omitempty"`
}

// CallResult handles GET /invocations/{token}. A pending call reports 202;
// ?wait=true blocks until the call settles or the request context ends.
func (h *Handler) CallResult(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var (
		st  dispatch.CallStatus
		err error
	)
	if r.URL.Query().Get("wait") == "true" {
		st, err = h.Dispatcher.Await(r.Context(), token)
	} else {
		st, err = h.Dispatcher.Status(token)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		dispatchError(w, err)
		return
	}

	view := callView{
		Token:     st.Token,
		Operation: st.Operation,
		Settled:   st.Settled,
	}
	status := http.StatusAccepted
	if st.Settled {
		status = http.StatusOK
		res := viewFromOutcome(*st.Outcome, st.Correlation)
		view.Result = &res
	}
	writeJSON(w, status, view)
}

// batchRequest is the payload for POST /invoke-batch.
type batchRequest struct {
	Invocations []struct {
		Operation   string `json:"operation"`
		Inputs      []any  `json:"inputs"`
		Correlation string `json:"correlation"`
	} `json:"invocations"`
}

// batchEntry is one slot of a batch response. Either Result or Error is set.
type batchEntry struct {
	Operation string          `json:"operation"`
	Result    *invocationView `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// InvokeBatch handles POST /invoke-batch. Invocations run concurrently with
// a bounded limit; per-slot routing errors do not fail the batch.
func (h *Handler) InvokeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if len(req.Invocations) == 0 {
		http.Error(w, "empty batch", http.StatusBadRequest)
		return
	}

	entries := make([]batchEntry, len(req.Invocations))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(batchLimit)
	for i, inv := range req.Invocations {
		g.Go(func() error {
			entries[i].Operation = inv.Operation
			res, err := h.Dispatcher.Dispatch(ctx, inv.Operation, inv.Inputs, inv.Correlation)
			if err != nil {
				entries[i].Error = err.Error()
				return nil
			}
			view := viewFromOutcome(res.Outcome, res.Correlation)
			entries[i].Result = &view
			return nil
		})
	}
	g.Wait()

	writeJSON(w, http.StatusOK, map[string]any{"results": entries})
}

// ListRecords handles GET /invocation-records. Supports ?operation= and
// ?limit= filters.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	if h.Records == nil {
		http.Error(w, "invocation records not enabled", http.StatusNotImplemented)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		records []store.InvocationRecord
		err     error
	)
	if op := r.URL.Query().Get("operation"); op != "" {
		records, err = h.Records.ListInvocationRecords(r.Context(), op, limit)
	} else {
		records, err = h.Records.ListAllInvocationRecords(r.Context(), limit)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.InvocationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// Health handles GET /health - detailed status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := map[string]any{
		"operations":    len(h.Dispatcher.Operations()),
		"pending_calls": len(h.Dispatcher.PendingCalls()),
	}

	if h.Records != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		recordsOK := h.Records.Ping(ctx) == nil
		components["records"] = recordsOK
		if !recordsOK {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"components":     components,
		"uptime_seconds": int64(time.Since(metrics.StartTime()).Seconds()),
	})
}

// HealthLive handles GET /health/live - liveness probe
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready - readiness probe
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.Records != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Records.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  "record store unavailable: " + err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
