package diag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oriys/halo/internal/dispatch"
	"github.com/oriys/halo/internal/fault"
	"github.com/oriys/halo/internal/invoker"
	"github.com/oriys/halo/internal/operation"
)

func newDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	d := dispatch.New()
	if err := Register(d); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return d
}

func TestRegister(t *testing.T) {
	d := newDispatcher(t)

	want := []string{"diag.add", "diag.crash", "diag.echo", "diag.fail", "diag.sleep", "diag.split"}
	infos := d.Operations()
	if len(infos) != len(want) {
		t.Fatalf("operations = %d, want %d", len(infos), len(want))
	}
	for i, info := range infos {
		if info.Name != want[i] {
			t.Errorf("operations[%d] = %q, want %q", i, info.Name, want[i])
		}
	}

	if err := Register(d); !errors.Is(err, operation.ErrDuplicateOperation) {
		t.Errorf("second Register = %v, want duplicate error", err)
	}
}

func TestEcho(t *testing.T) {
	d := newDispatcher(t)

	res, err := d.Dispatch(context.Background(), "diag.echo", []any{"ping"}, "")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != invoker.StatusSucceeded || res.Value != "ping" {
		t.Errorf("outcome = %v %v, want succeeded ping", res.Status, res.Value)
	}
}

func TestAdd(t *testing.T) {
	d := newDispatcher(t)

	res, err := d.Dispatch(context.Background(), "diag.add", []any{2, 3.5}, "")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != invoker.StatusSucceeded || res.Value != 5.5 {
		t.Errorf("outcome = %v %v, want succeeded 5.5", res.Status, res.Value)
	}

	res, err = d.Dispatch(context.Background(), "diag.add", []any{"x", 1}, "")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != invoker.StatusFaulted {
		t.Fatalf("Status = %v, want faulted", res.Status)
	}
	if f, ok := fault.From(res.Err); !ok || f.Code != "DiagBadInput" {
		t.Errorf("fault = %v, want DiagBadInput", res.Err)
	}
}

func TestSplit(t *testing.T) {
	d := newDispatcher(t)

	res, err := d.Dispatch(context.Background(), "diag.split", []any{"user@example.com", "@"}, "")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != invoker.StatusSucceeded {
		t.Fatalf("Status = %v, want succeeded", res.Status)
	}
	if len(res.Outputs) != 2 || res.Outputs[0] != "user" || res.Outputs[1] != "example.com" {
		t.Errorf("outputs = %v, want [user example.com]", res.Outputs)
	}
}

func TestSleep(t *testing.T) {
	d := newDispatcher(t)

	start := time.Now()
	res, err := d.Dispatch(context.Background(), "diag.sleep", []any{20}, "")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != invoker.StatusSucceeded {
		t.Fatalf("Status = %v, want succeeded", res.Status)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("settled after %v, want >= 20ms", elapsed)
	}
}

func TestSleepCancelled(t *testing.T) {
	d := newDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	token, err := d.Begin(ctx, "diag.sleep", []any{5000}, "")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	cancel()

	st, err := d.Await(context.Background(), token)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if st.Outcome.Status != invoker.StatusCancelled {
		t.Errorf("Status = %v, want cancelled", st.Outcome.Status)
	}
}

func TestFail(t *testing.T) {
	d := newDispatcher(t)

	res, err := d.Dispatch(context.Background(), "diag.fail", []any{"boom"}, "")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != invoker.StatusFaulted {
		t.Fatalf("Status = %v, want faulted", res.Status)
	}
	f, ok := fault.From(res.Err)
	if !ok || f.Code != "DiagFailure" || f.Message != "boom" {
		t.Errorf("fault = %v, want DiagFailure boom", res.Err)
	}
}

func TestCrash(t *testing.T) {
	d := newDispatcher(t)

	res, err := d.Dispatch(context.Background(), "diag.crash", nil, "")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != invoker.StatusFailed {
		t.Fatalf("Status = %v, want failed", res.Status)
	}
	var pe *operation.PanicError
	if !errors.As(res.Err, &pe) {
		t.Fatalf("Err = %v, want PanicError", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "diag.crash") {
		t.Errorf("Err = %q, want operation name in message", res.Err)
	}
}
