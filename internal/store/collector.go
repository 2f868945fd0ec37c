package store

import (
	"time"

	"github.com/oriys/halo/internal/telemetry"
)

// RecordCollector turns terminal telemetry events into invocation records
// and hands them to the batcher. Invoked events and events without a
// correlation token are skipped.
type RecordCollector struct {
	batcher *Batcher
}

func NewRecordCollector(b *Batcher) *RecordCollector {
	return &RecordCollector{batcher: b}
}

func (c *RecordCollector) Record(ev telemetry.Event) {
	if !ev.Kind.Terminal() || ev.Correlation == "" {
		return
	}
	rec := InvocationRecord{
		Correlation: ev.Correlation,
		Operation:   ev.Operation,
		Status:      ev.Kind.Status(),
		DurationMs:  ev.Duration.Milliseconds(),
		CreatedAt:   time.Now(),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	c.batcher.Enqueue(rec)
}
