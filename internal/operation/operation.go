// Package operation models service operations as bound, precompiled call
// targets. An Operation pairs a name and a fixed signature (input slots,
// output slots, return kind) with the handler that implements it. The
// return kind is decided here, at binding time; nothing downstream inspects
// runtime types to discover whether an operation is asynchronous or whether
// it produces a value.
package operation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ReturnKind describes what an operation's handler produces.
type ReturnKind uint8

const (
	// ReturnNone: synchronous, no return value.
	ReturnNone ReturnKind = iota
	// ReturnValue: synchronous, one return value.
	ReturnValue
	// ReturnAsyncNone: returns a *future.Pending that settles with no value.
	ReturnAsyncNone
	// ReturnAsyncValue: returns a *future.Pending that settles with a value.
	ReturnAsyncValue
)

// IsAsync reports whether the handler returns a pending handle.
func (k ReturnKind) IsAsync() bool {
	return k == ReturnAsyncNone || k == ReturnAsyncValue
}

// HasValue reports whether a successful invocation carries a return value.
func (k ReturnKind) HasValue() bool {
	return k == ReturnValue || k == ReturnAsyncValue
}

func (k ReturnKind) valid() bool {
	return k <= ReturnAsyncValue
}

func (k ReturnKind) String() string {
	switch k {
	case ReturnNone:
		return "none"
	case ReturnValue:
		return "value"
	case ReturnAsyncNone:
		return "async-none"
	case ReturnAsyncValue:
		return "async-value"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Signature fixes an operation's call shape: the number of ordered input
// slots, the number of ordered output slots, and the return kind.
type Signature struct {
	Inputs  int        `json:"inputs"`
	Outputs int        `json:"outputs"`
	Return  ReturnKind `json:"return"`
}

func (s Signature) validate() error {
	if s.Inputs < 0 {
		return fmt.Errorf("negative input count %d", s.Inputs)
	}
	if s.Outputs < 0 {
		return fmt.Errorf("negative output count %d", s.Outputs)
	}
	if !s.Return.valid() {
		return fmt.Errorf("invalid return kind %d", uint8(s.Return))
	}
	return nil
}

// Handler is the uniform callable shape every operation is bound with.
// target is the service instance the call is directed at; inputs has
// exactly Signature.Inputs elements; outputs has exactly Signature.Outputs
// elements and is written in place. For async return kinds the returned
// value must be a *future.Pending.
type Handler func(ctx context.Context, target any, inputs []any, outputs []any) (any, error)

// Operation is a bound operation: immutable identity and signature plus the
// handler, with the compiled thunk memoized on first use.
type Operation struct {
	name    string
	sig     Signature
	handler Handler

	// Published only fully constructed. Concurrent first compiles are
	// tolerated: each produces an equivalent thunk and the last store wins.
	thunk atomic.Pointer[Thunk]
}

// New creates a bound operation, validating the signature.
func New(name string, sig Signature, handler Handler) (*Operation, error) {
	if name == "" {
		return nil, errors.New("operation: empty name")
	}
	if handler == nil {
		return nil, fmt.Errorf("operation %q: nil handler", name)
	}
	if err := sig.validate(); err != nil {
		return nil, fmt.Errorf("operation %q: %w", name, err)
	}
	return &Operation{name: name, sig: sig, handler: handler}, nil
}

// MustNew is New panicking on error, for static registration tables.
func MustNew(name string, sig Signature, handler Handler) *Operation {
	op, err := New(name, sig, handler)
	if err != nil {
		panic(err)
	}
	return op
}

// Name returns the operation's registered name.
func (o *Operation) Name() string { return o.name }

// Signature returns the operation's call shape.
func (o *Operation) Signature() Signature { return o.sig }

// Compiled returns the operation's call thunk, compiling it on first use.
// Safe for concurrent callers; no locks are taken.
func (o *Operation) Compiled() *Thunk {
	if t := o.thunk.Load(); t != nil {
		return t
	}
	t := compile(o)
	o.thunk.Store(t)
	return t
}

// HasCompiled reports whether a thunk has been published yet.
func (o *Operation) HasCompiled() bool {
	return o.thunk.Load() != nil
}
