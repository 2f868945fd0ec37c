// Package metrics exposes the runtime's invocation metrics. The prometheus
// registry is the primary surface; a small lock-free snapshot backs the
// controlplane stats endpoint without a scrape round-trip.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Counters is the atomic in-process tally of invocation outcomes.
type Counters struct {
	startTime time.Time

	Total     atomic.Int64
	Succeeded atomic.Int64
	Faulted   atomic.Int64
	Cancelled atomic.Int64
	Failed    atomic.Int64
}

var global = &Counters{startTime: time.Now()}

// Global returns the process-wide counters.
func Global() *Counters {
	return global
}

// StartTime returns when the process started counting.
func StartTime() time.Time {
	return global.startTime
}

// RecordOutcome tallies one finished invocation by status string
// ("succeeded", "faulted", "cancelled", "failed").
func (c *Counters) RecordOutcome(status string) {
	c.Total.Add(1)
	switch status {
	case "succeeded":
		c.Succeeded.Add(1)
	case "faulted":
		c.Faulted.Add(1)
	case "cancelled":
		c.Cancelled.Add(1)
	case "failed":
		c.Failed.Add(1)
	}
}

// Snapshot returns the counters as a JSON-friendly map.
func (c *Counters) Snapshot() map[string]any {
	return map[string]any{
		"uptime_seconds": int64(time.Since(c.startTime).Seconds()),
		"invocations": map[string]int64{
			"total":     c.Total.Load(),
			"succeeded": c.Succeeded.Load(),
			"faulted":   c.Faulted.Load(),
			"cancelled": c.Cancelled.Load(),
			"failed":    c.Failed.Load(),
		},
	}
}

// JSONHandler serves the counter snapshot as JSON.
func (c *Counters) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(c.Snapshot())
	})
}
