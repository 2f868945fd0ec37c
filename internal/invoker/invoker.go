package invoker

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/halo/internal/future"
	"github.com/oriys/halo/internal/operation"
	"github.com/oriys/halo/internal/telemetry"
)

// Invoker binds one operation to the invocation procedure. It holds no
// per-call state, so a single invoker serves concurrent calls.
type Invoker struct {
	op        *operation.Operation
	collector telemetry.Collector
	policy    telemetry.Policy
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithCollector enables instrumentation. A nil collector leaves it off.
func WithCollector(c telemetry.Collector) Option {
	return func(iv *Invoker) { iv.collector = c }
}

// WithPolicy sets the event emission policy.
func WithPolicy(p telemetry.Policy) Option {
	return func(iv *Invoker) { iv.policy = p }
}

// New creates an invoker for op.
func New(op *operation.Operation, opts ...Option) *Invoker {
	iv := &Invoker{op: op}
	for _, opt := range opts {
		opt(iv)
	}
	return iv
}

// Operation returns the bound operation.
func (iv *Invoker) Operation() *operation.Operation { return iv.op }

// AllocateInputs returns a fresh zero-valued input buffer sized to the
// operation's input slot count. Buffers are never shared or reused.
func (iv *Invoker) AllocateInputs() []any {
	return make([]any, iv.op.Signature().Inputs)
}

// Invoke runs the operation against target and returns its outcome.
// It never panics and every return is one of the four terminal statuses.
//
// Precondition failures (nil target, wrong input count) return a
// synchronous Failed outcome before the thunk is compiled or the target
// touched, and emit no instrumentation events. Otherwise exactly one
// invoked event is emitted before dispatch and at most one terminal event
// after classification; cancelled invocations emit a terminal event only
// under Policy.EmitCancelled.
//
// For asynchronous return kinds the invoker waits on the pending handle's
// Done channel, the invocation's only suspension point. It deliberately
// does not watch ctx while waiting: cancellation reaches the handle
// through the handler, which owns propagating ctx to its computation.
func (iv *Invoker) Invoke(ctx context.Context, target any, inputs []any, corr string) Outcome {
	sig := iv.op.Signature()

	if target == nil {
		return iv.preDispatchFailure(sig,
			fmt.Errorf("operation %q: %w", iv.op.Name(), ErrNilTarget))
	}
	if len(inputs) != sig.Inputs {
		return iv.preDispatchFailure(sig,
			fmt.Errorf("operation %q: %w: want %d, got %d",
				iv.op.Name(), ErrArgumentMismatch, sig.Inputs, len(inputs)))
	}

	thunk := iv.op.Compiled()
	outputs := make([]any, sig.Outputs)

	start := time.Now()
	iv.emit(telemetry.Event{
		Kind:        telemetry.EventInvoked,
		Operation:   iv.op.Name(),
		Correlation: corr,
	})

	value, err := thunk.Call(ctx, target, inputs, outputs)

	if sig.Return.IsAsync() && err == nil {
		pending := value.(*future.Pending)
		<-pending.Done()
		value, err = pending.Result()
	}

	status, val, cerr := classify(iv.op.Name(), value, err)
	if !sig.Return.HasValue() {
		val = nil
	}
	out := Outcome{
		Status:   status,
		Value:    val,
		Outputs:  outputs,
		Err:      cerr,
		Duration: time.Since(start),
	}
	iv.emitTerminal(out, corr)
	return out
}

func (iv *Invoker) preDispatchFailure(sig operation.Signature, err error) Outcome {
	return Outcome{
		Status:  StatusFailed,
		Outputs: make([]any, sig.Outputs),
		Err:     err,
	}
}

func (iv *Invoker) emit(ev telemetry.Event) {
	if iv.collector == nil {
		return
	}
	telemetry.Emit(iv.collector, ev)
}

func (iv *Invoker) emitTerminal(out Outcome, corr string) {
	if iv.collector == nil {
		return
	}
	var kind telemetry.EventKind
	switch out.Status {
	case StatusSucceeded:
		kind = telemetry.EventCompleted
	case StatusFaulted:
		kind = telemetry.EventFaulted
	case StatusFailed:
		kind = telemetry.EventFailed
	case StatusCancelled:
		if !iv.policy.EmitCancelled {
			return
		}
		kind = telemetry.EventCancelled
	}
	telemetry.Emit(iv.collector, telemetry.Event{
		Kind:        kind,
		Operation:   iv.op.Name(),
		Correlation: corr,
		Duration:    out.Duration,
		Err:         out.Err,
	})
}
