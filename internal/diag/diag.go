// Package diag registers built-in diagnostic operations so a freshly
// started node can be exercised end to end without deploying anything.
// The set covers every outcome class: plain values, multiple outputs,
// asynchronous completion, business faults and handler panics.
package diag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oriys/halo/internal/dispatch"
	"github.com/oriys/halo/internal/fault"
	"github.com/oriys/halo/internal/future"
	"github.com/oriys/halo/internal/operation"
)

// Service is the invocation target for the diagnostic operations.
type Service struct{}

// Register adds the diagnostic operations to the dispatcher.
func Register(d *dispatch.Dispatcher) error {
	svc := &Service{}
	for _, op := range operations() {
		if err := d.Register(op, svc); err != nil {
			return fmt.Errorf("register %s: %w", op.Name(), err)
		}
	}
	return nil
}

// asNumber tolerates JSON-decoded inputs, where every number is a float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func operations() []*operation.Operation {
	return []*operation.Operation{
		operation.MustNew("diag.echo", operation.Signature{Inputs: 1, Return: operation.ReturnValue}, echo),
		operation.MustNew("diag.add", operation.Signature{Inputs: 2, Return: operation.ReturnValue}, add),
		operation.MustNew("diag.split", operation.Signature{Inputs: 2, Outputs: 2, Return: operation.ReturnNone}, split),
		operation.MustNew("diag.sleep", operation.Signature{Inputs: 1, Return: operation.ReturnAsyncNone}, sleep),
		operation.MustNew("diag.fail", operation.Signature{Inputs: 1, Return: operation.ReturnNone}, fail),
		operation.MustNew("diag.crash", operation.Signature{Return: operation.ReturnNone}, crash),
	}
}

// echo returns its single input unchanged.
func echo(ctx context.Context, target any, inputs, outputs []any) (any, error) {
	return inputs[0], nil
}

// add sums two numeric inputs.
func add(ctx context.Context, target any, inputs, outputs []any) (any, error) {
	a, okA := asNumber(inputs[0])
	b, okB := asNumber(inputs[1])
	if !okA || !okB {
		return nil, fault.New("DiagBadInput", "diag.add expects two numbers")
	}
	return a + b, nil
}

// split cuts a string at the first separator into two output slots.
func split(ctx context.Context, target any, inputs, outputs []any) (any, error) {
	text := asString(inputs[0])
	sep := asString(inputs[1])
	if sep == "" {
		return nil, fault.New("DiagBadInput", "diag.split expects a non-empty separator")
	}
	before, after, _ := strings.Cut(text, sep)
	outputs[0] = before
	outputs[1] = after
	return nil, nil
}

// sleep settles after the requested number of milliseconds, or earlier when
// the caller's context ends.
func sleep(ctx context.Context, target any, inputs, outputs []any) (any, error) {
	ms, ok := asNumber(inputs[0])
	if !ok || ms < 0 {
		return nil, fault.New("DiagBadInput", "diag.sleep expects a non-negative duration in milliseconds")
	}

	p := future.New()
	go func() {
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
			p.Resolve(nil)
		case <-ctx.Done():
			p.Cancel()
		}
	}()
	return p, nil
}

// fail raises a business fault carrying the given message.
func fail(ctx context.Context, target any, inputs, outputs []any) (any, error) {
	msg := asString(inputs[0])
	if msg == "" {
		msg = "requested failure"
	}
	return nil, fault.New("DiagFailure", msg)
}

// crash panics on purpose to exercise panic recovery.
func crash(ctx context.Context, target any, inputs, outputs []any) (any, error) {
	panic("diag.crash invoked")
}
