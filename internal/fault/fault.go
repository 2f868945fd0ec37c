// Package fault defines the error type for deliberate, application-level
// failures that cross the service boundary. A fault is part of an
// operation's contract: the dispatch pipeline carries it to the caller
// unchanged and never wraps it with infrastructure context.
package fault

import (
	"errors"
	"fmt"
)

// Fault is a business failure raised by an operation. Code is a stable,
// machine-readable identifier; Message is human-readable; Detail is an
// optional structured payload serialized as-is on the wire.
type Fault struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// New creates a fault with the given code and message.
func New(code, message string) *Fault {
	return &Fault{Code: code, Message: message}
}

// Errorf creates a fault with a formatted message.
func Errorf(code, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a structured payload and returns the fault.
func (f *Fault) WithDetail(detail any) *Fault {
	f.Detail = detail
	return f
}

func (f *Fault) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return f.Code + ": " + f.Message
}

// From extracts a fault from err's chain.
func From(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsFault reports whether err carries a fault anywhere in its chain.
func IsFault(err error) bool {
	_, ok := From(err)
	return ok
}
