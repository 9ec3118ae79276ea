package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"tableload/internal/metrics"
)

// DefaultBatchSize is used when a backend has no batch_size option.
const DefaultBatchSize = 500

// CopyFn inserts one batch of rows aligned to columns and returns the number
// of rows inserted. Backends implement it on top of an open transaction.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches splits rows into batches of batchSize and calls copyFn for each
// one. It returns the total reported by copyFn and stops at the first error.
// job labels the batch metric.
func LoadBatches(
	ctx context.Context,
	job string,
	columns []string,
	rows [][]any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	var (
		total   int64
		batches int64
		start   = time.Now()
	)
	defer func() { metrics.RecordBatches(job, batches) }()

	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		hi := min(lo+batchSize, len(rows))
		n, err := copyFn(ctx, columns, rows[lo:hi])
		total += n
		if err != nil {
			log.Printf("loader: batch failed job=%s batch=%d inserted=%d total=%d err=%v", job, batches+1, n, total, err)
			return total, err
		}
		batches++
	}
	if batches > 0 {
		log.Printf("loader: job=%s batches=%d total_inserted=%d elapsed=%s",
			job, batches, total, time.Since(start).Truncate(time.Millisecond))
	}
	return total, nil
}
