package operation

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/oriys/halo/internal/future"
)

// Thunk is the compiled call shim for one operation. Compilation
// specializes the handler for its declared return kind and fences panics,
// so callers get a plain (value, error) pair whatever the handler does.
// Errors produced here carry no operation name; the caller attributes them.
type Thunk struct {
	fn Handler
}

// Call runs the compiled operation.
func (t *Thunk) Call(ctx context.Context, target any, inputs []any, outputs []any) (any, error) {
	return t.fn(ctx, target, inputs, outputs)
}

// PanicError is the failure produced when a handler panics. The recovered
// value and the stack at the point of recovery are preserved.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// compile builds the thunk for op. One small wrapper per return kind, a
// closure table rather than reflection: the kind was fixed at binding time
// and the shape of the call never has to be rediscovered.
func compile(op *Operation) *Thunk {
	guarded := guard(op.handler)

	var fn Handler
	switch op.sig.Return {
	case ReturnNone:
		fn = func(ctx context.Context, target any, inputs, outputs []any) (any, error) {
			_, err := guarded(ctx, target, inputs, outputs)
			return nil, err
		}
	case ReturnValue:
		fn = guarded
	case ReturnAsyncNone, ReturnAsyncValue:
		fn = func(ctx context.Context, target any, inputs, outputs []any) (any, error) {
			v, err := guarded(ctx, target, inputs, outputs)
			if err != nil {
				return nil, err
			}
			if _, ok := v.(*future.Pending); !ok {
				return nil, fmt.Errorf("async handler returned %T, want *future.Pending", v)
			}
			return v, nil
		}
	}
	return &Thunk{fn: fn}
}

// guard converts handler panics into *PanicError returns.
func guard(h Handler) Handler {
	return func(ctx context.Context, target any, inputs, outputs []any) (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				v = nil
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return h(ctx, target, inputs, outputs)
	}
}
