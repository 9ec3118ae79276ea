// Package mssql implements storage.Store on Microsoft SQL Server through the
// shared database/sql engine. Each dataset maps to a schema namespace, and
// rows are loaded with the go-mssqldb bulk copy API inside the commit
// transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"tableload/internal/schema"
	"tableload/internal/storage"
	msddl "tableload/internal/storage/mssql/ddl"
	"tableload/internal/storage/sqlstore"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN       string
	BatchSize int
}

type dialect struct{}

func (dialect) Name() string             { return "mssql" }
func (dialect) Quote(id string) string   { return msddl.QuoteIdent(id) }
func (dialect) Placeholder(n int) string { return sqlstore.AtP(n) }
func (dialect) MaxParams() int           { return 2000 }
func (dialect) CreateMeta() string       { return msddl.MetaTableSQL() }

func (dialect) TableName(t storage.Table) string {
	return msddl.QuoteFQN(sqlstore.Namespace(t), t.Name)
}

func (dialect) CreateTable(t storage.Table, s schema.Schema) ([]string, error) {
	return msddl.BuildCreateTableSQL(sqlstore.Namespace(t), t.Name, s)
}

// BulkInsert streams rows through a bulk copy statement prepared on tx.
func (dialect) BulkInsert(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// NewRepository connects to SQL Server and returns a Store plus a Close
// function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*sqlstore.Store, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mssql: ping: %w", err)
	}
	st, err := sqlstore.New(ctx, db, dialect{}, sqlstore.WithBatchSize(cfg.BatchSize))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return st, func() { _ = db.Close() }, nil
}
