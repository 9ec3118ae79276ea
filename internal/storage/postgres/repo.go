// Package postgres implements storage.Store on Postgres using pgx v5. Each
// dataset maps to a schema namespace; rows are loaded with COPY inside the
// same transaction that truncates or checks the table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	gddl "tableload/internal/ddl"
	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/storage"
	pgddl "tableload/internal/storage/postgres/ddl"
	"tableload/internal/storage/sqlstore"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN       string // connection string for pgxpool
	BatchSize int    // rows per COPY call
}

// Repository is a Postgres-backed implementation of storage.Store.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository connects, ensures the metadata table exists and returns a
// Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	if _, err := pool.Exec(ctx, pgddl.MetaTableSQL()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: create %s: %w", gddl.MetaTable, err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

func tableIdent(t storage.Table) pgx.Identifier {
	return pgx.Identifier{sqlstore.Namespace(t), t.Name}
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var lookupSQL = fmt.Sprintf("SELECT %s::text FROM %s WHERE %s = $1",
	pgddl.QuoteIdent("schema_json"), pgddl.QuoteIdent(gddl.MetaTable), pgddl.QuoteIdent("table_ref"))

func lookupSchema(ctx context.Context, q queryRower, t storage.Table, lock bool) (schema.Schema, bool, error) {
	query := lookupSQL
	if lock {
		query += " FOR UPDATE"
	}
	var raw string
	err := q.QueryRow(ctx, query, t.String()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.Schema{}, false, nil
	}
	if err != nil {
		return schema.Schema{}, false, fmt.Errorf("postgres: read schema of %s: %w", t, err)
	}
	s, err := schema.ParseJSON([]byte(raw))
	if err != nil {
		return schema.Schema{}, false, fmt.Errorf("postgres: stored schema of %s: %w", t, err)
	}
	return s, true, nil
}

func count(ctx context.Context, q queryRower, t storage.Table) (int64, error) {
	var n int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+tableIdent(t).Sanitize()).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count %s: %w", t, err)
	}
	return n, nil
}

// Describe reports the stored schema and row count of t.
func (r *Repository) Describe(ctx context.Context, t storage.Table) (storage.TableInfo, error) {
	s, ok, err := lookupSchema(ctx, r.pool, t, false)
	if err != nil || !ok {
		return storage.TableInfo{}, err
	}
	n, err := count(ctx, r.pool, t)
	if err != nil {
		return storage.TableInfo{}, err
	}
	return storage.TableInfo{Exists: true, Schema: s, Rows: n}, nil
}

// Create creates the namespace and table and records the schema, all in one
// transaction (Postgres DDL is transactional).
func (r *Repository) Create(ctx context.Context, t storage.Table, s schema.Schema) error {
	stmts, err := pgddl.BuildCreateTableSQL(sqlstore.Namespace(t), t.Name, s)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("postgres: encode schema: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: create %s: %w", t, err)
		}
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3)",
		pgddl.QuoteIdent(gddl.MetaTable), pgddl.QuoteIdent("table_ref"), pgddl.QuoteIdent("schema_json"), pgddl.QuoteIdent("fingerprint"))
	if _, err := tx.Exec(ctx, insert, t.String(), string(raw), strconv.FormatUint(s.Fingerprint(), 16)); err != nil {
		return fmt.Errorf("postgres: record schema of %s: %w", t, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	log.Printf("postgres: created table=%s columns=%d", t, s.Len())
	return nil
}

// Commit loads recs with COPY inside one transaction. The metadata row is
// locked for the duration so concurrent commits to the same table serialize.
func (r *Repository) Commit(ctx context.Context, t storage.Table, s schema.Schema, recs []record.Record, mode storage.Mode) (int64, error) {
	columns, rows, err := storage.Flatten(s, recs)
	if err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, ok, err := lookupSchema(ctx, tx, t, true); err != nil {
		return 0, err
	} else if !ok {
		return 0, fmt.Errorf("postgres: %s: %w", t, storage.ErrNotFound)
	}

	ident := tableIdent(t)
	switch mode {
	case storage.RequireEmpty:
		n, err := count(ctx, tx, t)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return 0, fmt.Errorf("postgres: %s has %d rows: %w", t, n, storage.ErrNotEmpty)
		}
	case storage.Truncate:
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+ident.Sanitize()); err != nil {
			return 0, fmt.Errorf("postgres: truncate %s: %w", t, err)
		}
	}

	copyFn := func(ctx context.Context, cols []string, batch [][]any) (int64, error) {
		n, err := tx.CopyFrom(ctx, ident, cols, pgx.CopyFromRows(batch))
		if err != nil {
			return n, fmt.Errorf("postgres: copy into %s: %w", t, err)
		}
		return n, nil
	}
	inserted, err := storage.LoadBatches(ctx, t.String(), columns, rows, r.cfg.BatchSize, copyFn)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return inserted, nil
}
