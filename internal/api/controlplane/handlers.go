// Package controlplane exposes the operational surface of the dispatcher:
// operation registry inspection, enable/disable toggles, telemetry policy
// and pending call listings.
package controlplane

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/oriys/halo/internal/dispatch"
	"github.com/oriys/halo/internal/telemetry"
)

// Handler handles control plane HTTP requests.
type Handler struct {
	Dispatcher *dispatch.Dispatcher
}

// RegisterRoutes registers all control plane routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Operation registry
	mux.HandleFunc("GET /operations", h.ListOperations)
	mux.HandleFunc("GET /operations/{name}", h.GetOperation)
	mux.HandleFunc("PATCH /operations/{name}", h.UpdateOperation)

	// Telemetry policy
	mux.HandleFunc("GET /telemetry/policy", h.GetPolicy)
	mux.HandleFunc("PUT /telemetry/policy", h.UpdatePolicy)

	// Pending calls
	mux.HandleFunc("GET /calls", h.ListCalls)
}

// ListOperations handles GET /operations
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Dispatcher.Operations())
}

// GetOperation handles GET /operations/{name}
func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, ok := h.Dispatcher.Operation(name)
	if !ok {
		http.Error(w, "operation not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// UpdateOperation handles PATCH /operations/{name}
func (h *Handler) UpdateOperation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req struct {
		Disabled *bool `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Disabled != nil {
		if err := h.Dispatcher.SetDisabled(name, *req.Disabled); err != nil {
			if errors.Is(err, dispatch.ErrUnknownOperation) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	info, ok := h.Dispatcher.Operation(name)
	if !ok {
		http.Error(w, "operation not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// GetPolicy handles GET /telemetry/policy
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Dispatcher.Policy())
}

// UpdatePolicy handles PUT /telemetry/policy. The new policy applies to
// calls started after the update.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var policy telemetry.Policy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Dispatcher.SetPolicy(policy)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Dispatcher.Policy())
}

type pendingCallView struct {
	Token       string    `json:"token"`
	Operation   string    `json:"operation"`
	Correlation string    `json:"correlation"`
	Settled     bool      `json:"settled"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListCalls handles GET /calls
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	entries := h.Dispatcher.PendingCalls()

	result := make([]pendingCallView, len(entries))
	for i, e := range entries {
		result[i] = pendingCallView{
			Token:       e.Token,
			Operation:   e.Operation,
			Correlation: e.Correlation,
			Settled:     e.Call.Settled(),
			CreatedAt:   e.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
