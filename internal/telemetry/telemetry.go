// Package telemetry defines the discrete instrumentation events the
// invocation pipeline emits and the collector interface that consumes
// them. Collectors are observational only: a slow, failing or panicking
// collector never changes an invocation's outcome, so every emission goes
// through Emit, which fences panics and tolerates a nil collector.
package telemetry

import (
	"log/slog"
	"time"

	"github.com/oriys/halo/internal/logging"
)

// EventKind names one event in an invocation's lifecycle.
type EventKind string

const (
	EventInvoked   EventKind = "invoked"
	EventCompleted EventKind = "completed"
	EventFaulted   EventKind = "faulted"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Terminal reports whether the kind ends an invocation's event stream.
func (k EventKind) Terminal() bool {
	return k != EventInvoked
}

// Status returns the outcome status a terminal kind maps to ("succeeded",
// "faulted", "failed", "cancelled"), or "" for non-terminal kinds.
func (k EventKind) Status() string {
	switch k {
	case EventCompleted:
		return "succeeded"
	case EventFaulted, EventFailed, EventCancelled:
		return string(k)
	default:
		return ""
	}
}

// Event is one keyed instrumentation record. Duration is zero for
// EventInvoked; Err is set for faulted and failed events.
type Event struct {
	Kind        EventKind
	Operation   string
	Correlation string
	Duration    time.Duration
	Err         error
}

// Collector consumes instrumentation events.
type Collector interface {
	Record(Event)
}

// Policy controls optional event emission. Cancelled invocations emit no
// terminal event unless EmitCancelled is set.
type Policy struct {
	EmitCancelled bool `json:"emit_cancelled" yaml:"emit_cancelled"`
}

// Emit records ev on c. A nil collector is a no-op. Collector panics are
// swallowed and logged; they must never reach the invocation path.
func Emit(c Collector, ev Event) {
	if c == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Warn("telemetry collector panicked",
				"kind", string(ev.Kind),
				"operation", ev.Operation,
				"panic", r)
		}
	}()
	c.Record(ev)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Record(Event) {}

// Func adapts a function to the Collector interface.
type Func func(Event)

func (f Func) Record(ev Event) { f(ev) }

// Multi fans events out to several collectors, each individually fenced.
type Multi []Collector

func (m Multi) Record(ev Event) {
	for _, c := range m {
		Emit(c, ev)
	}
}

// LogCollector writes events as structured log lines. With a nil logger it
// follows the process logger, including runtime handler swaps.
type LogCollector struct {
	logger *slog.Logger
}

// NewLogCollector creates a log-backed collector. logger may be nil.
func NewLogCollector(logger *slog.Logger) *LogCollector {
	return &LogCollector{logger: logger}
}

func (c *LogCollector) Record(ev Event) {
	logger := c.logger
	if logger == nil {
		logger = logging.Op()
	}
	args := []any{
		"operation", ev.Operation,
		"correlation", ev.Correlation,
	}
	if ev.Kind.Terminal() {
		args = append(args, "duration_ms", ev.Duration.Milliseconds())
	}
	if ev.Err != nil {
		args = append(args, "error", ev.Err.Error())
	}

	switch ev.Kind {
	case EventInvoked:
		logger.Debug("operation invoked", args...)
	case EventCompleted:
		logger.Info("operation completed", args...)
	case EventFaulted:
		logger.Warn("operation faulted", args...)
	case EventFailed:
		logger.Error("operation failed", args...)
	case EventCancelled:
		logger.Info("operation cancelled", args...)
	}
}
