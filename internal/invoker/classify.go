package invoker

import (
	"fmt"

	"github.com/oriys/halo/internal/fault"
	"github.com/oriys/halo/internal/future"
)

// classify maps a settled (value, error) pair to its terminal status. It
// is the only place outcomes are decided, and it runs only after the
// result is known. Priority is strict: a business fault wins over
// cancellation, cancellation wins over other errors.
//
// Faults pass through unchanged and unwrapped. Cancellation carries no
// payload. Any other error is wrapped exactly once with the operation
// name, preserving the cause for errors.Is and errors.As.
func classify(opName string, value any, err error) (Status, any, error) {
	if err != nil {
		if f, ok := fault.From(err); ok {
			return StatusFaulted, nil, f
		}
		if future.IsCancellation(err) {
			return StatusCancelled, nil, nil
		}
		return StatusFailed, nil, fmt.Errorf("operation %q: %w", opName, err)
	}
	return StatusSucceeded, value, nil
}
