// Package store persists invocation records. The primary backend is
// PostgreSQL; writers are decoupled from producers through the Batcher so
// that recording never blocks an invocation.
package store

import (
	"context"
	"time"
)

// InvocationRecord is one row in the invocation history. Correlation is the
// primary key: re-saving a record with a known correlation token is a no-op.
type InvocationRecord struct {
	Correlation string    `json:"correlation"`
	Operation   string    `json:"operation"`
	Status      string    `json:"status"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordWriter saves invocation records in bulk.
type RecordWriter interface {
	SaveInvocationRecords(ctx context.Context, records []InvocationRecord) error
}
