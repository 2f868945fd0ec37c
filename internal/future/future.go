// Package future provides the settle-once completion handle returned by
// asynchronous operations. A producer settles the handle exactly once with
// a value, an error, or a cancellation; consumers wait on Done and read the
// result after it closes. There is no polling: waiting parks the goroutine
// until settlement.
package future

import (
	"context"
	"errors"
	"sync"
)

// Pending is a single-use completion handle. It must be created with New
// (or one of the pre-settled constructors); the zero value is not usable.
//
// The first of Resolve, Reject or Cancel wins. Later settle calls are
// no-ops, so racing producers are safe and the observed result never
// changes once Done is closed.
type Pending struct {
	mu      sync.Mutex
	done    chan struct{}
	value   any
	err     error
	settled bool
}

// New creates an unsettled handle.
func New() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolved creates a handle already settled with the given value.
func Resolved(v any) *Pending {
	p := New()
	p.Resolve(v)
	return p
}

// Rejected creates a handle already settled with the given error.
func Rejected(err error) *Pending {
	p := New()
	p.Reject(err)
	return p
}

// Cancelled creates a handle already settled as cancelled.
func Cancelled() *Pending {
	p := New()
	p.Cancel()
	return p
}

// Resolve settles the handle with a value. It reports whether this call
// performed the settlement.
func (p *Pending) Resolve(v any) bool {
	return p.settle(v, nil)
}

// Reject settles the handle with an error. A nil err is coerced to a
// generic failure so a rejected handle never reads as success.
func (p *Pending) Reject(err error) bool {
	if err == nil {
		err = errors.New("rejected")
	}
	return p.settle(nil, err)
}

// Cancel settles the handle as cancelled. Consumers observe
// context.Canceled as the error.
func (p *Pending) Cancel() bool {
	return p.settle(nil, context.Canceled)
}

// Done returns a channel that is closed when the handle settles.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether the handle has been settled.
func (p *Pending) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Result returns the settled value and error. Before settlement both are
// zero; callers should wait on Done first.
func (p *Pending) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

func (p *Pending) settle(v any, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.settled {
		return false
	}
	p.value = v
	p.err = err
	p.settled = true
	close(p.done)
	return true
}

// IsCancellation reports whether err represents a cancelled computation:
// context.Canceled or context.DeadlineExceeded anywhere in its chain.
// Deadline expiry counts because timeouts are applied by producers
// cancelling the handle; the consumer side does not distinguish the two.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
