package calltracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oriys/halo/internal/invoker"
	"github.com/oriys/halo/internal/operation"
)

func noopHandler(ctx context.Context, target any, inputs, outputs []any) (any, error) {
	return nil, nil
}

func newSettledCall(t *testing.T) *invoker.PendingCall {
	t.Helper()
	op := operation.MustNew("tracker.noop", operation.Signature{Return: operation.ReturnNone}, noopHandler)
	call := invoker.New(op).Begin(context.Background(), struct{}{}, nil, "corr-1", nil, nil)
	select {
	case <-call.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("call did not settle")
	}
	return call
}

func newBlockedCall(t *testing.T, gate chan struct{}) *invoker.PendingCall {
	t.Helper()
	op := operation.MustNew("tracker.block", operation.Signature{Return: operation.ReturnNone},
		func(ctx context.Context, target any, inputs, outputs []any) (any, error) {
			<-gate
			return nil, nil
		})
	return invoker.New(op).Begin(context.Background(), struct{}{}, nil, "corr-1", nil, nil)
}

func TestTrackerPutGet(t *testing.T) {
	tr := New(time.Minute, 0)
	defer tr.Close()

	call := newSettledCall(t)
	if err := tr.Put("tok-1", "tracker.noop", "corr-1", call); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	e, ok := tr.Get("tok-1")
	if !ok {
		t.Fatal("Get did not find tracked call")
	}
	if e.Token != "tok-1" || e.Operation != "tracker.noop" || e.Correlation != "corr-1" {
		t.Errorf("entry = %+v", e)
	}
	if e.Call != call {
		t.Error("entry does not share the tracked call")
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}

	if _, ok := tr.Get("missing"); ok {
		t.Error("Get found a token that was never tracked")
	}
}

func TestTrackerDuplicateToken(t *testing.T) {
	tr := New(time.Minute, 0)
	defer tr.Close()

	call := newSettledCall(t)
	if err := tr.Put("tok-1", "tracker.noop", "corr-1", call); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tr.Put("tok-1", "tracker.noop", "corr-2", call); !errors.Is(err, ErrDuplicateToken) {
		t.Fatalf("Put duplicate = %v, want ErrDuplicateToken", err)
	}
}

func TestTrackerNilCall(t *testing.T) {
	tr := New(time.Minute, 0)
	defer tr.Close()

	if err := tr.Put("tok-1", "tracker.noop", "corr-1", nil); !errors.Is(err, invoker.ErrNilPendingCall) {
		t.Fatalf("Put nil call = %v, want ErrNilPendingCall", err)
	}
}

func TestTrackerFull(t *testing.T) {
	tr := New(time.Minute, 0)
	defer tr.Close()
	tr.maxSize = 1

	call := newSettledCall(t)
	if err := tr.Put("tok-1", "tracker.noop", "corr-1", call); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tr.Put("tok-2", "tracker.noop", "corr-2", call); !errors.Is(err, ErrFull) {
		t.Fatalf("Put at capacity = %v, want ErrFull", err)
	}
}

func TestTrackerRemove(t *testing.T) {
	tr := New(time.Minute, 0)
	defer tr.Close()

	call := newSettledCall(t)
	if err := tr.Put("tok-1", "tracker.noop", "corr-1", call); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	tr.Remove("tok-1")
	if _, ok := tr.Get("tok-1"); ok {
		t.Error("entry still present after Remove")
	}
	if tr.Len() != 0 {
		t.Errorf("Len = %d, want 0", tr.Len())
	}
}

func TestTrackerList(t *testing.T) {
	tr := New(time.Minute, 0)
	defer tr.Close()

	call := newSettledCall(t)
	for _, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		if err := tr.Put(tok, "tracker.noop", "corr", call); err != nil {
			t.Fatalf("Put %s failed: %v", tok, err)
		}
	}

	entries := tr.List()
	if len(entries) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(entries))
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.Token] = true
	}
	for _, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		if !seen[tok] {
			t.Errorf("List missing %s", tok)
		}
	}
}

func TestTrackerEvictsSettledAfterTTL(t *testing.T) {
	tr := New(40 * time.Millisecond, 10 * time.Millisecond)
	defer tr.Close()

	call := newSettledCall(t)
	if err := tr.Put("tok-1", "tracker.noop", "corr-1", call); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := tr.Get("tok-1"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("settled entry was not evicted after the TTL")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestTrackerKeepsUnsettled(t *testing.T) {
	tr := New(40 * time.Millisecond, 10 * time.Millisecond)
	defer tr.Close()

	gate := make(chan struct{})
	call := newBlockedCall(t, gate)
	defer close(gate)

	if err := tr.Put("tok-1", "tracker.block", "corr-1", call); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Several sweep periods pass; the unsettled call must survive them.
	time.Sleep(200 * time.Millisecond)
	if _, ok := tr.Get("tok-1"); !ok {
		t.Fatal("unsettled entry was evicted")
	}
}
