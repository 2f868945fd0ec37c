package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oriys/halo/internal/dispatch"
	"github.com/oriys/halo/internal/operation"
	"github.com/oriys/halo/internal/telemetry"
)

func newTestMux(t *testing.T, gate chan struct{}) (*http.ServeMux, *dispatch.Dispatcher) {
	t.Helper()

	d := dispatch.New()
	ops := []*operation.Operation{
		operation.MustNew("math.add", operation.Signature{Inputs: 2, Return: operation.ReturnValue},
			func(ctx context.Context, target any, inputs, outputs []any) (any, error) {
				return inputs[0], nil
			}),
		operation.MustNew("ops.gated", operation.Signature{Inputs: 1, Return: operation.ReturnValue},
			func(ctx context.Context, target any, inputs, outputs []any) (any, error) {
				<-gate
				return inputs[0], nil
			}),
	}
	for _, op := range ops {
		if err := d.Register(op, struct{}{}); err != nil {
			t.Fatalf("Register %s failed: %v", op.Name(), err)
		}
	}

	h := &Handler{Dispatcher: d}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, d
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestListOperations(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	rr := doJSON(t, mux, http.MethodGet, "/operations", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var infos []dispatch.Info
	if err := json.NewDecoder(rr.Body).Decode(&infos); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("operations = %d, want 2", len(infos))
	}
	if infos[0].Name != "math.add" || infos[1].Name != "ops.gated" {
		t.Errorf("listing not sorted: %q, %q", infos[0].Name, infos[1].Name)
	}
	if infos[0].Inputs != 2 || infos[0].Return != "value" {
		t.Errorf("unexpected info: %+v", infos[0])
	}
}

func TestGetOperation(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	rr := doJSON(t, mux, http.MethodGet, "/operations/math.add", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var info dispatch.Info
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Name != "math.add" || info.Disabled {
		t.Errorf("unexpected info: %+v", info)
	}

	rr = doJSON(t, mux, http.MethodGet, "/operations/no.such", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestUpdateOperation(t *testing.T) {
	mux, d := newTestMux(t, nil)

	rr := doJSON(t, mux, http.MethodPatch, "/operations/math.add", map[string]any{"disabled": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var info dispatch.Info
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !info.Disabled {
		t.Error("operation not disabled")
	}

	if _, err := d.Dispatch(context.Background(), "math.add", []any{1, 2}, ""); err == nil {
		t.Error("dispatch succeeded on disabled operation")
	}

	rr = doJSON(t, mux, http.MethodPatch, "/operations/math.add", map[string]any{"disabled": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Disabled {
		t.Error("operation still disabled")
	}
}

func TestUpdateOperationUnknown(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	rr := doJSON(t, mux, http.MethodPatch, "/operations/no.such", map[string]any{"disabled": true})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestUpdateOperationInvalidJSON(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodPatch, "/operations/math.add", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestTelemetryPolicy(t *testing.T) {
	mux, d := newTestMux(t, nil)

	rr := doJSON(t, mux, http.MethodGet, "/telemetry/policy", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var policy telemetry.Policy
	if err := json.NewDecoder(rr.Body).Decode(&policy); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if policy.EmitCancelled {
		t.Error("default policy emits cancellation events")
	}

	rr = doJSON(t, mux, http.MethodPut, "/telemetry/policy", telemetry.Policy{EmitCancelled: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if err := json.NewDecoder(rr.Body).Decode(&policy); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !policy.EmitCancelled {
		t.Error("policy update not applied")
	}
	if !d.Policy().EmitCancelled {
		t.Error("dispatcher policy unchanged")
	}
}

func TestListCalls(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	mux, d := newTestMux(t, gate)

	rr := doJSON(t, mux, http.MethodGet, "/calls", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var calls []pendingCallView
	if err := json.NewDecoder(rr.Body).Decode(&calls); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("calls = %d, want 0", len(calls))
	}

	token, err := d.Begin(context.Background(), "ops.gated", []any{"x"}, "corr-7")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	rr = doJSON(t, mux, http.MethodGet, "/calls", nil)
	if err := json.NewDecoder(rr.Body).Decode(&calls); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Token != token || calls[0].Operation != "ops.gated" || calls[0].Correlation != "corr-7" {
		t.Errorf("unexpected call view: %+v", calls[0])
	}
	if calls[0].Settled {
		t.Error("call reported settled while gated")
	}
}
