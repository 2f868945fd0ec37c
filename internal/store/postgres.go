package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS invocation_records (
			correlation TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			status TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocation_records_operation ON invocation_records(operation)`,
		`CREATE INDEX IF NOT EXISTS idx_invocation_records_created_at ON invocation_records(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_invocation_records_op_time ON invocation_records(operation, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveInvocationRecords inserts the given records in a single batch.
// Correlation tokens already present in the table are skipped, so retried
// flushes do not duplicate rows.
func (s *PostgresStore) SaveInvocationRecords(ctx context.Context, records []InvocationRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range records {
		rec := &records[i]
		if rec.Correlation == "" {
			return fmt.Errorf("invocation record correlation is required")
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		batch.Queue(`
			INSERT INTO invocation_records (correlation, operation, status, duration_ms, error_message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (correlation) DO NOTHING
		`, rec.Correlation, rec.Operation, rec.Status, rec.DurationMs, rec.Error, rec.CreatedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save invocation records: %w", err)
		}
	}

	return nil
}

// ListInvocationRecords returns the most recent records for one operation.
func (s *PostgresStore) ListInvocationRecords(ctx context.Context, operation string, limit int) ([]InvocationRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT correlation, operation, status, duration_ms, error_message, created_at
		FROM invocation_records
		WHERE operation = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, operation, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocation records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListAllInvocationRecords returns the most recent records across all
// operations.
func (s *PostgresStore) ListAllInvocationRecords(ctx context.Context, limit int) ([]InvocationRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT correlation, operation, status, duration_ms, error_message, created_at
		FROM invocation_records
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocation records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]InvocationRecord, error) {
	var records []InvocationRecord
	for rows.Next() {
		var rec InvocationRecord
		var errorMessage *string
		if err := rows.Scan(&rec.Correlation, &rec.Operation, &rec.Status, &rec.DurationMs, &errorMessage, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invocation record: %w", err)
		}
		if errorMessage != nil {
			rec.Error = *errorMessage
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invocation record rows: %w", err)
	}
	return records, nil
}
