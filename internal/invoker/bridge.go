package invoker

import (
	"context"
	"fmt"

	"github.com/oriys/halo/internal/logging"
)

// PendingCall is the token for an invocation started through Begin. The
// outcome is readable once Done closes; State carries the opaque value the
// caller passed at Begin.
type PendingCall struct {
	outcome Outcome
	done    chan struct{}
	state   any
}

// Done returns a channel closed when the invocation completes.
func (c *PendingCall) Done() <-chan struct{} { return c.done }

// Settled reports whether the invocation has completed.
func (c *PendingCall) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// State returns the opaque value supplied at Begin.
func (c *PendingCall) State() any { return c.state }

// Outcome returns the invocation's outcome once settled.
func (c *PendingCall) Outcome() (Outcome, bool) {
	select {
	case <-c.done:
		return c.outcome, true
	default:
		return Outcome{}, false
	}
}

// Begin starts the invocation on its own goroutine and returns the pending
// call immediately. When the outcome is known it is stored, Done is
// closed, and then onComplete runs exactly once with the settled call.
// onComplete may be nil; a panicking callback is fenced and logged and
// does not disturb the stored outcome.
//
// Begin performs no classification of its own: the outcome later returned
// by End is exactly what Invoke produced, pre-dispatch failures included.
func (iv *Invoker) Begin(ctx context.Context, target any, inputs []any, corr string, onComplete func(*PendingCall), state any) *PendingCall {
	call := &PendingCall{done: make(chan struct{}), state: state}
	go func() {
		call.outcome = iv.Invoke(ctx, target, inputs, corr)
		close(call.done)
		if onComplete != nil {
			runCallback(iv.op.Name(), onComplete, call)
		}
	}()
	return call
}

// End blocks until the call completes, then surfaces the outcome the way
// callback-style callers expect: (value, outputs, nil) for Succeeded, the
// stored business fault unchanged for Faulted, ErrCancelled for Cancelled,
// and the wrapped infrastructure error for Failed. Calling End repeatedly
// returns the same results. End always blocks; callers that need to
// compose with select use Done instead.
func End(call *PendingCall) (any, []any, error) {
	if call == nil {
		return nil, nil, fmt.Errorf("end invoke: %w", ErrNilPendingCall)
	}
	<-call.done
	out := call.outcome
	switch out.Status {
	case StatusSucceeded:
		return out.Value, out.Outputs, nil
	case StatusCancelled:
		return nil, out.Outputs, ErrCancelled
	default:
		return nil, out.Outputs, out.Err
	}
}

func runCallback(opName string, onComplete func(*PendingCall), call *PendingCall) {
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Warn("completion callback panicked",
				"operation", opName,
				"panic", r)
		}
	}()
	onComplete(call)
}
