// Package sink applies create/write dispositions against a table store. A
// Writer is stateless between calls and safe for concurrent use as long as
// the underlying store is.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/storage"
)

// DefaultTimeout bounds a whole Write unless WithTimeout overrides it.
const DefaultTimeout = 30 * time.Second

// Writer writes record batches to a storage.Store.
type Writer struct {
	store   storage.Store
	timeout time.Duration
	strict  bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithTimeout bounds each Write. Zero or negative disables the bound.
func WithTimeout(d time.Duration) WriterOption {
	return func(w *Writer) { w.timeout = d }
}

// WithStrict enables record validation against the schema before any write.
func WithStrict(strict bool) WriterOption {
	return func(w *Writer) { w.strict = strict }
}

// NewWriter returns a Writer over store.
func NewWriter(store storage.Store, opts ...WriterOption) *Writer {
	w := &Writer{store: store, timeout: DefaultTimeout}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Strict reports whether strict validation is enabled.
func (w *Writer) Strict() bool { return w.strict }

// Timeout returns the per-write bound.
func (w *Writer) Timeout() time.Duration { return w.timeout }

// WriteResult describes a successful write.
type WriteResult struct {
	Target      TableRef
	Disposition Disposition
	Created     bool
	Truncated   bool
	RowsBefore  int64
	RowsWritten int64
	// Checksum is the xxh3 hash of the canonical NDJSON encoding of the
	// batch. Identical batches produce identical checksums.
	Checksum uint64
}

// Write applies d to target and commits recs as one unit:
//
//  1. look up the target
//  2. create it (CREATE_IF_NEEDED) or fail with *TargetMissingError
//     (CREATE_NEVER); an existing target must match sch or the write fails
//     with *SchemaMismatchError
//  3. WRITE_EMPTY fails with *TargetNotEmptyError if rows exist
//  4. commit, truncating first for WRITE_TRUNCATE
//
// In strict mode every record is validated before step 1, so a
// non-conforming batch creates nothing. The store commits the batch
// atomically; a failed Write leaves no partial batch visible.
func (w *Writer) Write(ctx context.Context, sch schema.Schema, recs []record.Record, target TableRef, d Disposition) (WriteResult, error) {
	if target.IsZero() {
		return WriteResult{}, &InvalidTargetError{Reason: "empty table reference"}
	}
	if sch.IsZero() {
		return WriteResult{}, fmt.Errorf("sink: write %s: schema has no fields", target)
	}
	if w.strict {
		if err := record.Validate(sch, recs); err != nil {
			return WriteResult{}, fmt.Errorf("sink: write %s: %w", target, err)
		}
	}
	checksum, err := record.Checksum(sch, recs)
	if err != nil {
		return WriteResult{}, fmt.Errorf("sink: write %s: encode batch: %w", target, err)
	}

	parent := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	res := WriteResult{Target: target, Disposition: d, Checksum: checksum}
	tbl := target.storage()

	info, err := w.store.Describe(ctx, tbl)
	if err != nil {
		return WriteResult{}, w.wrap(ctx, parent, target, "describe", err)
	}
	if !info.Exists {
		if d.Create == CreateNever {
			return WriteResult{}, &TargetMissingError{Target: target}
		}
		if err := w.store.Create(ctx, tbl, sch); err != nil {
			return WriteResult{}, w.wrap(ctx, parent, target, "create", err)
		}
		res.Created = true
	} else {
		if path, reason, ok := schema.Diff(sch, info.Schema); !ok {
			return WriteResult{}, &SchemaMismatchError{Target: target, Path: path, Reason: reason}
		}
		res.RowsBefore = info.Rows
	}
	if d.Write == WriteEmpty && res.RowsBefore > 0 {
		return WriteResult{}, &TargetNotEmptyError{Target: target, Rows: res.RowsBefore}
	}

	n, err := w.store.Commit(ctx, tbl, sch, recs, d.Write.mode())
	switch {
	case errors.Is(err, storage.ErrNotEmpty):
		return WriteResult{}, &TargetNotEmptyError{Target: target, Rows: -1}
	case errors.Is(err, storage.ErrNotFound):
		return WriteResult{}, &TargetMissingError{Target: target}
	case err != nil:
		return WriteResult{}, w.wrap(ctx, parent, target, "commit", err)
	}
	res.RowsWritten = n
	res.Truncated = d.Write == WriteTruncate

	log.Printf("sink: target=%s disposition=%s created=%t rows_before=%d rows_written=%d checksum=%016x",
		target, d, res.Created, res.RowsBefore, n, checksum)
	return res, nil
}

// wrap turns an expiry of the writer's own deadline into *TimeoutError.
// Cancellation or deadlines from the caller's context pass through.
func (w *Writer) wrap(ctx, parent context.Context, target TableRef, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return &TimeoutError{Target: target, Op: op, Timeout: w.timeout, Err: err}
	}
	return &OpError{Target: target, Op: op, Err: err}
}
