package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"tableload/internal/ddl"
	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/storage"
)

// Store is a database/sql implementation of storage.Store.
type Store struct {
	db        *sql.DB
	d         Dialect
	batchSize int
	closeFn   func() error
}

// Option configures a Store.
type Option func(*Store)

// WithBatchSize sets the number of rows per INSERT statement. The effective
// size is further capped by the dialect's parameter limit.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New wraps an open database and ensures the metadata table exists.
func New(ctx context.Context, db *sql.DB, d Dialect, opts ...Option) (*Store, error) {
	s := &Store{db: db, d: d, batchSize: storage.DefaultBatchSize, closeFn: db.Close}
	for _, o := range opts {
		o(s)
	}
	if _, err := db.ExecContext(ctx, d.CreateMeta()); err != nil {
		return nil, fmt.Errorf("%s: create %s: %w", d.Name(), ddl.MetaTable, err)
	}
	return s, nil
}

var _ storage.Store = (*Store)(nil)

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) lookupSchema(ctx context.Context, q querier, t storage.Table) (schema.Schema, bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		s.d.Quote("schema_json"), s.d.Quote(ddl.MetaTable), s.d.Quote("table_ref"), s.d.Placeholder(1))
	var raw string
	err := q.QueryRowContext(ctx, query, t.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Schema{}, false, nil
	}
	if err != nil {
		return schema.Schema{}, false, fmt.Errorf("%s: read schema of %s: %w", s.d.Name(), t, err)
	}
	sch, err := schema.ParseJSON([]byte(raw))
	if err != nil {
		return schema.Schema{}, false, fmt.Errorf("%s: stored schema of %s: %w", s.d.Name(), t, err)
	}
	return sch, true, nil
}

func (s *Store) count(ctx context.Context, q querier, t storage.Table) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.d.TableName(t)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count %s: %w", s.d.Name(), t, err)
	}
	return n, nil
}

// Describe reports the stored schema and row count of t.
func (s *Store) Describe(ctx context.Context, t storage.Table) (storage.TableInfo, error) {
	sch, ok, err := s.lookupSchema(ctx, s.db, t)
	if err != nil || !ok {
		return storage.TableInfo{}, err
	}
	n, err := s.count(ctx, s.db, t)
	if err != nil {
		return storage.TableInfo{}, err
	}
	return storage.TableInfo{Exists: true, Schema: sch, Rows: n}, nil
}

// Create creates the table and records its schema in one transaction. The
// dialect's statements only run when no schema is recorded for t.
func (s *Store) Create(ctx context.Context, t storage.Table, sch schema.Schema) error {
	stmts, err := s.d.CreateTable(t, sch)
	if err != nil {
		return fmt.Errorf("%s: %w", s.d.Name(), err)
	}
	raw, err := sch.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%s: encode schema: %w", s.d.Name(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", s.d.Name(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, ok, err := s.lookupSchema(ctx, tx, t); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%s: create %s: table already exists", s.d.Name(), t)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: create %s: %w", s.d.Name(), t, err)
		}
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
		s.d.Quote(ddl.MetaTable), s.d.Quote("table_ref"), s.d.Quote("schema_json"), s.d.Quote("fingerprint"),
		s.d.Placeholder(1), s.d.Placeholder(2), s.d.Placeholder(3))
	fp := strconv.FormatUint(sch.Fingerprint(), 16)
	if _, err := tx.ExecContext(ctx, insert, t.String(), string(raw), fp); err != nil {
		return fmt.Errorf("%s: record schema of %s: %w", s.d.Name(), t, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.d.Name(), err)
	}
	log.Printf("%s: created table=%s columns=%d", s.d.Name(), t, sch.Len())
	return nil
}

// Commit writes recs in one transaction. Truncate uses DELETE so the
// removal rolls back with the insert on failure.
func (s *Store) Commit(ctx context.Context, t storage.Table, sch schema.Schema, recs []record.Record, mode storage.Mode) (int64, error) {
	columns, rows, err := storage.Flatten(sch, recs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.d.Name(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", s.d.Name(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, ok, err := s.lookupSchema(ctx, tx, t); err != nil {
		return 0, err
	} else if !ok {
		return 0, fmt.Errorf("%s: %s: %w", s.d.Name(), t, storage.ErrNotFound)
	}

	table := s.d.TableName(t)
	switch mode {
	case storage.RequireEmpty:
		n, err := s.count(ctx, tx, t)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return 0, fmt.Errorf("%s: %s has %d rows: %w", s.d.Name(), t, n, storage.ErrNotEmpty)
		}
	case storage.Truncate:
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("%s: truncate %s: %w", s.d.Name(), t, err)
		}
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.d.Quote(c)
	}
	bulk, hasBulk := s.d.(BulkInserter)
	copyFn := func(ctx context.Context, _ []string, batch [][]any) (int64, error) {
		if hasBulk {
			n, err := bulk.BulkInsert(ctx, tx, table, columns, batch)
			if err != nil {
				return n, fmt.Errorf("%s: bulk insert into %s: %w", s.d.Name(), t, err)
			}
			return n, nil
		}
		query, args := s.insertSQL(table, quoted, batch)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("%s: insert into %s: %w", s.d.Name(), t, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			return n, nil
		}
		return int64(len(batch)), nil
	}

	batchSize := s.batchSize
	if !hasBulk {
		batchSize = s.effectiveBatch(len(columns))
	}
	inserted, err := storage.LoadBatches(ctx, t.String(), columns, rows, batchSize, copyFn)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", s.d.Name(), err)
	}
	return inserted, nil
}

func (s *Store) effectiveBatch(cols int) int {
	n := s.batchSize
	if maxP := s.d.MaxParams(); maxP > 0 && cols > 0 && n*cols > maxP {
		n = maxP / cols
	}
	if n < 1 {
		n = 1
	}
	return n
}

// insertSQL renders a multi-row INSERT for batch.
func (s *Store) insertSQL(table string, quoted []string, batch [][]any) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(batch)*len(quoted))
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(quoted, ", "))
	n := 0
	for i, row := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			n++
			sb.WriteString(s.d.Placeholder(n))
			args = append(args, v)
		}
		sb.WriteByte(')')
	}
	return sb.String(), args
}
