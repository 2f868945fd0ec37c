package metrics

import (
	"github.com/oriys/halo/internal/telemetry"
)

// Collector feeds terminal telemetry events into the metrics surfaces.
// Invoked events are skipped; the active-request gauge is driven by the
// API layers, which see completion even when no terminal event is emitted.
type Collector struct{}

func (Collector) Record(ev telemetry.Event) {
	if !ev.Kind.Terminal() {
		return
	}
	status := ev.Kind.Status()
	RecordPrometheusInvocation(ev.Operation, status, ev.Duration.Milliseconds())
	Global().RecordOutcome(status)
}
