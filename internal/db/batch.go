package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BatchConfig holds configuration for batch insert operations.
type BatchConfig struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
	OnProgress func(processed, total int)
}

// DefaultBatchConfig returns sensible defaults for batch processing.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:  100,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		OnProgress: nil,
	}
}

// BatchInsert performs a chunked multi-row insert, used for fixture seeding
// and backfills. Returns the total number of rows inserted.
func (d *DB) BatchInsert(ctx context.Context, tableName string, columns []string, values [][]interface{}, cfg BatchConfig) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	totalInserted := 0
	totalRows := len(values)

	for i := 0; i < len(values); i += cfg.BatchSize {
		end := i + cfg.BatchSize
		if end > len(values) {
			end = len(values)
		}

		batch := values[i:end]
		inserted, err := d.insertBatch(ctx, tableName, columns, batch, cfg.MaxRetries, cfg.RetryDelay)
		if err != nil {
			return totalInserted, fmt.Errorf("batch insert failed at offset %d: %w", i, err)
		}

		totalInserted += inserted

		if cfg.OnProgress != nil {
			cfg.OnProgress(totalInserted, totalRows)
		}
	}

	return totalInserted, nil
}

func (d *DB) insertBatch(ctx context.Context, tableName string, columns []string, batch [][]interface{}, maxRetries int, retryDelay time.Duration) (int, error) {
	placeholders := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*len(columns))

	n := 1
	for _, row := range batch {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row has %d values, want %d", len(row), len(columns))
		}
		ph := make([]string, len(columns))
		for j := range columns {
			ph[j] = fmt.Sprintf("$%d", n)
			n++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args, row...)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING",
		tableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		tag, err := d.Pool.Exec(ctx, query, args...)
		if err == nil {
			return int(tag.RowsAffected()), nil
		}
		lastErr = err
	}

	return 0, lastErr
}
