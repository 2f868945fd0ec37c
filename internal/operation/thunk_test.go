package operation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oriys/halo/internal/future"
)

func TestCompileDiscardsValueForReturnNone(t *testing.T) {
	op := MustNew("svc.fire", Signature{Return: ReturnNone},
		func(_ context.Context, _ any, _ []any, _ []any) (any, error) {
			return "ignored", nil
		})

	v, err := op.Compiled().Call(context.Background(), struct{}{}, nil, nil)
	if err != nil {
		t.Fatalf("Call error = %v", err)
	}
	if v != nil {
		t.Errorf("value = %v, want nil for none-kind", v)
	}
}

func TestCompilePassesValueThrough(t *testing.T) {
	op := MustNew("svc.get", Signature{Return: ReturnValue},
		func(_ context.Context, _ any, _ []any, _ []any) (any, error) {
			return 7, nil
		})

	v, err := op.Compiled().Call(context.Background(), struct{}{}, nil, nil)
	if err != nil {
		t.Fatalf("Call error = %v", err)
	}
	if v != 7 {
		t.Errorf("value = %v, want 7", v)
	}
}

func TestCompileWritesOutputs(t *testing.T) {
	op := MustNew("svc.split", Signature{Inputs: 1, Outputs: 2, Return: ReturnNone},
		func(_ context.Context, _ any, inputs, outputs []any) (any, error) {
			outputs[0] = inputs[0].(int) / 10
			outputs[1] = inputs[0].(int) % 10
			return nil, nil
		})

	outputs := make([]any, 2)
	if _, err := op.Compiled().Call(context.Background(), struct{}{}, []any{42}, outputs); err != nil {
		t.Fatalf("Call error = %v", err)
	}
	if outputs[0] != 4 || outputs[1] != 2 {
		t.Errorf("outputs = %v, want [4 2]", outputs)
	}
}

func TestCompileAsyncReturnsPending(t *testing.T) {
	op := MustNew("svc.later", Signature{Return: ReturnAsyncValue},
		func(_ context.Context, _ any, _ []any, _ []any) (any, error) {
			return future.Resolved("done"), nil
		})

	v, err := op.Compiled().Call(context.Background(), struct{}{}, nil, nil)
	if err != nil {
		t.Fatalf("Call error = %v", err)
	}
	p, ok := v.(*future.Pending)
	if !ok {
		t.Fatalf("value type = %T, want *future.Pending", v)
	}
	got, _ := p.Result()
	if got != "done" {
		t.Errorf("settled value = %v, want done", got)
	}
}

func TestCompileAsyncRejectsWrongType(t *testing.T) {
	op := MustNew("svc.broken", Signature{Return: ReturnAsyncNone},
		func(_ context.Context, _ any, _ []any, _ []any) (any, error) {
			return "not a pending", nil
		})

	_, err := op.Compiled().Call(context.Background(), struct{}{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for non-pending async return")
	}
}

func TestCompileAsyncSyncErrorShortCircuits(t *testing.T) {
	boom := errors.New("connect refused")
	op := MustNew("svc.flaky", Signature{Return: ReturnAsyncValue},
		func(_ context.Context, _ any, _ []any, _ []any) (any, error) {
			return nil, boom
		})

	v, err := op.Compiled().Call(context.Background(), struct{}{}, nil, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if v != nil {
		t.Errorf("value = %v, want nil", v)
	}
}

func TestGuardCapturesPanic(t *testing.T) {
	op := MustNew("svc.crash", Signature{Return: ReturnValue},
		func(_ context.Context, _ any, _ []any, _ []any) (any, error) {
			panic("kaboom")
		})

	v, err := op.Compiled().Call(context.Background(), struct{}{}, nil, nil)
	if v != nil {
		t.Errorf("value = %v, want nil after panic", v)
	}
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v (%T), want *PanicError", err, err)
	}
	if pe.Value != "kaboom" {
		t.Errorf("recovered value = %v, want kaboom", pe.Value)
	}
	if len(pe.Stack) == 0 {
		t.Error("stack not captured")
	}
}

func TestCompiledMemoizesUnderRace(t *testing.T) {
	var calls atomic.Int32
	op := MustNew("svc.hot", Signature{Inputs: 1, Return: ReturnValue},
		func(_ context.Context, _ any, inputs, _ []any) (any, error) {
			calls.Add(1)
			return inputs[0], nil
		})

	const workers = 32
	thunks := make([]*Thunk, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			th := op.Compiled()
			thunks[n] = th
			v, err := th.Call(context.Background(), struct{}{}, []any{n}, nil)
			if err != nil {
				t.Errorf("worker %d: Call error = %v", n, err)
				return
			}
			if v != n {
				t.Errorf("worker %d: value = %v", n, v)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	// Racing first compiles may have built distinct thunks. Every one must
	// be complete and callable, and a thunk must be published afterwards.
	for i, th := range thunks {
		if th == nil {
			t.Fatalf("worker %d observed nil thunk", i)
		}
	}
	if !op.HasCompiled() {
		t.Fatal("no thunk published after concurrent compiles")
	}
	if got := calls.Load(); got != workers {
		t.Errorf("handler ran %d times, want %d", got, workers)
	}

	// Later callers share the published thunk.
	if op.Compiled() != op.Compiled() {
		t.Error("Compiled not stable after publish")
	}
}
