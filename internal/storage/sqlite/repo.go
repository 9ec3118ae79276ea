// Package sqlite implements a SQLite-backed storage.Store using database/sql
// and the pure-Go modernc driver. Tables are named dataset__table; nested
// and repeated fields are stored as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tableload/internal/schema"
	"tableload/internal/storage"
	sqliteddl "tableload/internal/storage/sqlite/ddl"
	"tableload/internal/storage/sqlstore"
)

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:tableload.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN string

	// BatchSize is the number of rows per INSERT statement.
	BatchSize int
}

// dialect implements sqlstore.Dialect for SQLite.
type dialect struct{}

func (dialect) Name() string               { return "sqlite" }
func (dialect) Quote(id string) string     { return sqliteddl.QuoteIdent(id) }
func (dialect) Placeholder(n int) string   { return sqlstore.QuestionMark(n) }
func (dialect) MaxParams() int             { return 32766 }
func (dialect) CreateMeta() string         { return sqliteddl.MetaTableSQL() }
func (dialect) TableName(t storage.Table) string {
	return sqliteddl.QuoteIdent(sqlstore.FlatName(t))
}

func (dialect) CreateTable(t storage.Table, s schema.Schema) ([]string, error) {
	stmt, err := sqliteddl.BuildCreateTableSQL(sqlstore.FlatName(t), s)
	if err != nil {
		return nil, err
	}
	return []string{stmt}, nil
}

// NewRepository opens a SQLite database and returns a Store plus a Close
// function for cleanup.
//
// SQLite allows one writer at a time, and an in-memory database exists per
// connection, so the pool is limited to a single connection.
func NewRepository(ctx context.Context, cfg Config) (*sqlstore.Store, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	st, err := sqlstore.New(ctx, db, dialect{}, sqlstore.WithBatchSize(cfg.BatchSize))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	closeFn := func() { db.Close() }
	return st, closeFn, nil
}
