package grpc

import (
	"github.com/oriys/halo/internal/dispatch"
	"github.com/oriys/halo/internal/fault"
	"github.com/oriys/halo/internal/invoker"
	"github.com/oriys/halo/internal/observability"
)

// InvokeRequest asks for one synchronous invocation. Inputs are positional
// and arrive as JSON values; an empty Correlation lets the daemon mint one.
// The embedded trace context carries W3C traceparent/tracestate inside the
// payload so server spans parent to the caller's trace.
type InvokeRequest struct {
	Operation   string `json:"operation"`
	Inputs      []any  `json:"inputs,omitempty"`
	Correlation string `json:"correlation,omitempty"`
	observability.TraceContext
}

// InvokeReply carries a settled invocation. Status is one of succeeded,
// faulted, cancelled or failed. Fault is set only for faulted, Error only
// for failed; a cancelled reply carries neither value nor error.
type InvokeReply struct {
	Status      string       `json:"status"`
	Value       any          `json:"value,omitempty"`
	Outputs     []any        `json:"outputs"`
	Fault       *fault.Fault `json:"fault,omitempty"`
	Error       string       `json:"error,omitempty"`
	Correlation string       `json:"correlation"`
	DurationMs  int64        `json:"duration_ms"`
}

// BeginRequest starts an asynchronous invocation.
type BeginRequest struct {
	Operation   string `json:"operation"`
	Inputs      []any  `json:"inputs,omitempty"`
	Correlation string `json:"correlation,omitempty"`
	observability.TraceContext
}

// BeginReply returns the call token for later result retrieval.
type BeginReply struct {
	Token string `json:"token"`
}

// ResultRequest fetches the state of an asynchronous call. With Wait set
// the server blocks until the call settles or the request context ends.
type ResultRequest struct {
	Token string `json:"token"`
	Wait  bool   `json:"wait,omitempty"`
}

// ResultReply reports a call's state. Result is set once Settled is true.
type ResultReply struct {
	Token     string       `json:"token"`
	Operation string       `json:"operation"`
	Settled   bool         `json:"settled"`
	Result    *InvokeReply `json:"result,omitempty"`
}

// ListOperationsRequest lists the operations bound on the daemon.
type ListOperationsRequest struct{}

// ListOperationsReply carries the bound operation descriptions.
type ListOperationsReply struct {
	Operations []dispatch.Info `json:"operations"`
}

// replyFromOutcome maps a settled outcome onto the wire shape.
func replyFromOutcome(out invoker.Outcome, corr string) *InvokeReply {
	reply := &InvokeReply{
		Status:      out.Status.String(),
		Outputs:     out.Outputs,
		Correlation: corr,
		DurationMs:  out.Duration.Milliseconds(),
	}
	switch out.Status {
	case invoker.StatusSucceeded:
		reply.Value = out.Value
	case invoker.StatusFaulted:
		if f, ok := fault.From(out.Err); ok {
			reply.Fault = f
		}
	case invoker.StatusFailed:
		if out.Err != nil {
			reply.Error = out.Err.Error()
		}
	}
	return reply
}
