// Package invoker executes bound operations and reduces every execution to
// a single tagged outcome. The four terminal statuses are the whole story:
// callers never see a raw handler error, a panic, or an unsettled handle.
// Classification happens in exactly one place, after the result is known.
package invoker

import (
	"errors"
	"time"
)

// Status is the terminal state of an invocation.
type Status uint8

const (
	// StatusSucceeded: the operation completed and produced its declared results.
	StatusSucceeded Status = iota
	// StatusFaulted: the operation raised a business fault addressed to the caller.
	StatusFaulted
	// StatusCancelled: the computation was cancelled before completion.
	StatusCancelled
	// StatusFailed: infrastructure or contract failure, including panics and
	// pre-dispatch precondition violations.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFaulted:
		return "faulted"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sentinel errors for matchable failure conditions. They are always
// wrapped with the operation name, so match with errors.Is.
var (
	// ErrArgumentMismatch: the input slice length does not equal the
	// operation's declared input slot count.
	ErrArgumentMismatch = errors.New("input count mismatch")
	// ErrNilTarget: no service instance was supplied.
	ErrNilTarget = errors.New("nil target instance")
	// ErrCancelled: the error view of a cancelled invocation.
	ErrCancelled = errors.New("invocation cancelled")
	// ErrNilPendingCall: End was called with a nil pending call.
	ErrNilPendingCall = errors.New("nil pending call")
)

// Outcome is the result of one invocation.
//
// Outputs is always non-nil with length equal to the operation's output
// slot count, on every path including pre-dispatch failures; slots the
// handler never wrote hold their zero values. Value is set only for a
// succeeded invocation of a value-bearing return kind. Err is the
// untouched business fault for Faulted, the wrapped infrastructure error
// for Failed, and nil otherwise; Cancelled carries no payload.
type Outcome struct {
	Status   Status
	Value    any
	Outputs  []any
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the invocation completed normally.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// Failure returns the outcome as an error: nil for Succeeded, the fault
// for Faulted, ErrCancelled for Cancelled, the wrapped error for Failed.
func (o Outcome) Failure() error {
	switch o.Status {
	case StatusFaulted, StatusFailed:
		return o.Err
	case StatusCancelled:
		return ErrCancelled
	default:
		return nil
	}
}
