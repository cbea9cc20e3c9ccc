package db

import (
	"context"
	"fmt"
	"time"
)

// BatchConfig holds configuration for chunked bulk inserts.
type BatchConfig struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultBatchConfig returns sensible defaults for bulk inserts.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:  500,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// BatchInsert performs a chunked bulk insert using COPY. It is used when a
// filter subscription auto-follows a large set of matching events at once.
// Returns the total number of rows inserted.
func (d *DB) BatchInsert(ctx context.Context, tableName string, columns []string, values [][]interface{}, cfg BatchConfig) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	totalInserted := 0

	for i := 0; i < len(values); i += cfg.BatchSize {
		end := i + cfg.BatchSize
		if end > len(values) {
			end = len(values)
		}

		inserted, err := d.insertBatch(ctx, tableName, columns, values[i:end], cfg.MaxRetries, cfg.RetryDelay)
		if err != nil {
			return totalInserted, fmt.Errorf("batch insert failed at offset %d: %w", i, err)
		}
		totalInserted += inserted
	}

	return totalInserted, nil
}

func (d *DB) insertBatch(ctx context.Context, tableName string, columns []string, batch [][]interface{}, maxRetries int, retryDelay time.Duration) (int, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		rowsCopied, err := d.Pool.CopyFrom(ctx, []string{tableName}, columns, &batchSource{rows: batch})
		if err == nil {
			return int(rowsCopied), nil
		}

		lastErr = err
		if attempt < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return 0, lastErr
}

// batchSource implements pgx.CopyFromSource.
type batchSource struct {
	rows  [][]interface{}
	index int
}

func (b *batchSource) Next() bool {
	b.index++
	return b.index <= len(b.rows)
}

func (b *batchSource) Values() ([]interface{}, error) {
	return b.rows[b.index-1], nil
}

func (b *batchSource) Err() error {
	return nil
}
