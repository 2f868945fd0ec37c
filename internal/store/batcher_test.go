package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oriys/halo/internal/telemetry"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]InvocationRecord
	saved   chan struct{}
	gate    chan struct{}
	err     error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{saved: make(chan struct{}, 16)}
}

func (w *fakeWriter) SaveInvocationRecords(ctx context.Context, records []InvocationRecord) error {
	w.mu.Lock()
	batch := make([]InvocationRecord, len(records))
	copy(batch, records)
	w.batches = append(w.batches, batch)
	gate := w.gate
	err := w.err
	w.mu.Unlock()

	w.saved <- struct{}{}
	if gate != nil {
		<-gate
	}
	return err
}

func (w *fakeWriter) all() []InvocationRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []InvocationRecord
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

func waitSaved(t *testing.T, w *fakeWriter) {
	t.Helper()
	select {
	case <-w.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch to be written")
	}
}

func TestBatcherFlushesOnBatchSize(t *testing.T) {
	w := newFakeWriter()
	b := NewBatcher(w, BatcherConfig{BatchSize: 2, FlushInterval: time.Hour})
	defer b.Shutdown(time.Second)

	b.Enqueue(InvocationRecord{Correlation: "c-1", Operation: "op", Status: "succeeded"})
	b.Enqueue(InvocationRecord{Correlation: "c-2", Operation: "op", Status: "succeeded"})

	waitSaved(t, w)
	if got := w.all(); len(got) != 2 {
		t.Fatalf("saved %d records, want 2", len(got))
	}
}

func TestBatcherFlushesOnInterval(t *testing.T) {
	w := newFakeWriter()
	b := NewBatcher(w, BatcherConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond})
	defer b.Shutdown(time.Second)

	b.Enqueue(InvocationRecord{Correlation: "c-1", Operation: "op", Status: "failed"})

	waitSaved(t, w)
	got := w.all()
	if len(got) != 1 || got[0].Correlation != "c-1" {
		t.Fatalf("saved %+v, want the single enqueued record", got)
	}
}

func TestBatcherShutdownFlushesRemainder(t *testing.T) {
	w := newFakeWriter()
	b := NewBatcher(w, BatcherConfig{BatchSize: 100, FlushInterval: time.Hour})

	for _, c := range []string{"c-1", "c-2", "c-3"} {
		b.Enqueue(InvocationRecord{Correlation: c, Operation: "op", Status: "succeeded"})
	}
	b.Shutdown(time.Second)

	if got := w.all(); len(got) != 3 {
		t.Fatalf("saved %d records after shutdown, want 3", len(got))
	}
}

func TestBatcherDropsWhenBufferFull(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	b := NewBatcher(w, BatcherConfig{BatchSize: 1, BufferSize: 1, FlushInterval: time.Hour})

	// First record is picked up by the run loop and blocks in the writer.
	b.Enqueue(InvocationRecord{Correlation: "c-1", Operation: "op", Status: "succeeded"})
	waitSaved(t, w)

	// Second fills the buffer, third has nowhere to go.
	b.Enqueue(InvocationRecord{Correlation: "c-2", Operation: "op", Status: "succeeded"})
	b.Enqueue(InvocationRecord{Correlation: "c-3", Operation: "op", Status: "succeeded"})

	close(w.gate)
	b.Shutdown(time.Second)

	got := w.all()
	if len(got) != 2 {
		t.Fatalf("saved %d records, want 2 (third dropped)", len(got))
	}
	for _, rec := range got {
		if rec.Correlation == "c-3" {
			t.Fatalf("dropped record was saved: %+v", rec)
		}
	}
}

func TestBatcherSurvivesWriterError(t *testing.T) {
	w := newFakeWriter()
	w.err = errors.New("db down")
	b := NewBatcher(w, BatcherConfig{BatchSize: 1, FlushInterval: time.Hour})

	b.Enqueue(InvocationRecord{Correlation: "c-1", Operation: "op", Status: "succeeded"})
	waitSaved(t, w)

	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()

	b.Enqueue(InvocationRecord{Correlation: "c-2", Operation: "op", Status: "succeeded"})
	waitSaved(t, w)
	b.Shutdown(time.Second)

	if got := w.all(); len(got) != 2 {
		t.Fatalf("saved %d records, want writes to continue after an error", len(got))
	}
}

func TestRecordCollector(t *testing.T) {
	w := newFakeWriter()
	b := NewBatcher(w, BatcherConfig{BatchSize: 100, FlushInterval: time.Hour})
	c := NewRecordCollector(b)

	c.Record(telemetry.Event{Kind: telemetry.EventInvoked, Operation: "billing.Charge", Correlation: "c-1"})
	c.Record(telemetry.Event{Kind: telemetry.EventCompleted, Operation: "billing.Charge", Duration: 5 * time.Millisecond})
	c.Record(telemetry.Event{
		Kind:        telemetry.EventFailed,
		Operation:   "billing.Charge",
		Correlation: "c-2",
		Duration:    7 * time.Millisecond,
		Err:         errors.New("connection reset"),
	})

	b.Shutdown(time.Second)

	got := w.all()
	if len(got) != 1 {
		t.Fatalf("saved %d records, want only the terminal event with a correlation", len(got))
	}
	rec := got[0]
	if rec.Correlation != "c-2" || rec.Operation != "billing.Charge" || rec.Status != "failed" {
		t.Errorf("record = %+v", rec)
	}
	if rec.DurationMs != 7 {
		t.Errorf("DurationMs = %d, want 7", rec.DurationMs)
	}
	if rec.Error != "connection reset" {
		t.Errorf("Error = %q, want the event error message", rec.Error)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}
