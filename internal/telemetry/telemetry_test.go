package telemetry

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestEmitNilCollector(t *testing.T) {
	// Must not panic.
	Emit(nil, Event{Kind: EventInvoked, Operation: "a.b"})
}

func TestEmitIsolatesPanic(t *testing.T) {
	// Reaching the end of the test means the panic did not escape Emit.
	Emit(Func(func(Event) { panic("collector bug") }), Event{Kind: EventCompleted})
}

func TestMultiFansOutAndIsolates(t *testing.T) {
	var got []string
	c := Multi{
		Nop{},
		Func(func(ev Event) { got = append(got, "first:"+string(ev.Kind)) }),
		Func(func(Event) { panic("middle collector bug") }),
		Func(func(ev Event) { got = append(got, "last:"+string(ev.Kind)) }),
	}
	Emit(c, Event{Kind: EventFaulted})

	if len(got) != 2 || got[0] != "first:faulted" || got[1] != "last:faulted" {
		t.Errorf("fan-out results = %v, want both healthy collectors hit", got)
	}
}

func TestEventKindTerminal(t *testing.T) {
	tests := []struct {
		kind EventKind
		want bool
	}{
		{EventInvoked, false},
		{EventCompleted, true},
		{EventFaulted, true},
		{EventFailed, true},
		{EventCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.kind.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestEventKindStatus(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventInvoked, ""},
		{EventCompleted, "succeeded"},
		{EventFaulted, "faulted"},
		{EventFailed, "failed"},
		{EventCancelled, "cancelled"},
	}
	for _, tt := range tests {
		if got := tt.kind.Status(); got != tt.want {
			t.Errorf("%s.Status() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestLogCollectorOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := NewLogCollector(logger)

	c.Record(Event{
		Kind:        EventFailed,
		Operation:   "orders.place",
		Correlation: "c0ffee42",
		Duration:    150 * time.Millisecond,
		Err:         errors.New("db unreachable"),
	})

	out := buf.String()
	for _, want := range []string{"orders.place", "c0ffee42", "duration_ms=150", "db unreachable"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestLogCollectorInvokedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	NewLogCollector(logger).Record(Event{Kind: EventInvoked, Operation: "a.b"})
	if buf.Len() != 0 {
		t.Errorf("invoked event logged above debug level: %s", buf.String())
	}
}
