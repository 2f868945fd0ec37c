package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/oriys/halo/internal/logging"
	"github.com/oriys/halo/internal/metrics"
)

const (
	defaultRecordBatchSize     = 100
	defaultRecordBufferSize    = 1000
	defaultRecordFlushInterval = 500 * time.Millisecond
	defaultRecordFlushTimeout  = 5 * time.Second
)

// BatcherConfig tunes the record batcher. Zero fields fall back to defaults.
type BatcherConfig struct {
	BatchSize     int
	BufferSize    int
	FlushInterval time.Duration
}

// Batcher accumulates invocation records and writes them to the backing
// store in batches. Enqueue never blocks; when the buffer is full the record
// is dropped and counted.
type Batcher struct {
	writer        RecordWriter
	logger        *slog.Logger
	records       chan InvocationRecord
	flushInterval time.Duration
	batchSize     int
	done          chan struct{}
}

func NewBatcher(w RecordWriter, cfg BatcherConfig) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultRecordBatchSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultRecordBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultRecordFlushInterval
	}
	b := &Batcher{
		writer:        w,
		logger:        logging.Op(),
		records:       make(chan InvocationRecord, cfg.BufferSize),
		flushInterval: cfg.FlushInterval,
		batchSize:     cfg.BatchSize,
		done:          make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Batcher) Enqueue(rec InvocationRecord) {
	select {
	case b.records <- rec:
	default:
		metrics.RecordDroppedRecord()
		b.logger.Warn("dropping invocation record due to full buffer", "correlation", rec.Correlation, "operation", rec.Operation)
	}
}

// Shutdown stops the batcher and flushes buffered records. Enqueue must not
// be called after Shutdown.
func (b *Batcher) Shutdown(timeout time.Duration) {
	close(b.records)
	select {
	case <-b.done:
		return
	case <-time.After(timeout):
		b.logger.Warn("timeout waiting for record batcher shutdown", "timeout", timeout)
	}
}

func (b *Batcher) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	batch := make([]InvocationRecord, 0, b.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultRecordFlushTimeout)
		defer cancel()
		if err := b.writer.SaveInvocationRecords(ctx, batch); err != nil {
			b.logger.Warn("failed to persist invocation records", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-b.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= b.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
