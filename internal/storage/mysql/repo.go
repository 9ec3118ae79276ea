// Package mysql implements storage.Store on MySQL (InnoDB) through the
// shared database/sql engine. Tables are named dataset__table; nested and
// repeated fields use JSON columns.
//
// MySQL commits DDL implicitly, so table creation and the metadata insert
// are not one atomic unit. Row commits are. A Create that fails after the
// CREATE TABLE leaves a physical table with no schema row; the next Create
// of the same table drops it before creating it again. Rows can only be
// committed to a table whose schema row exists, so the leftover is always
// empty.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"tableload/internal/schema"
	"tableload/internal/storage"
	myddl "tableload/internal/storage/mysql/ddl"
	"tableload/internal/storage/sqlstore"
)

// Config holds MySQL repository configuration.
type Config struct {
	// DSN in go-sql-driver format, e.g. "user:pass@tcp(localhost:3306)/tableload".
	DSN       string
	BatchSize int
}

type dialect struct{}

func (dialect) Name() string             { return "mysql" }
func (dialect) Quote(id string) string   { return myddl.QuoteIdent(id) }
func (dialect) Placeholder(n int) string { return sqlstore.QuestionMark(n) }
func (dialect) MaxParams() int           { return 65535 }
func (dialect) CreateMeta() string       { return myddl.MetaTableSQL() }

func (dialect) TableName(t storage.Table) string {
	return myddl.QuoteIdent(sqlstore.FlatName(t))
}

func (dialect) CreateTable(t storage.Table, s schema.Schema) ([]string, error) {
	stmt, err := myddl.BuildCreateTableSQL(sqlstore.FlatName(t), s)
	if err != nil {
		return nil, err
	}
	return []string{"DROP TABLE IF EXISTS " + myddl.QuoteIdent(sqlstore.FlatName(t)), stmt}, nil
}

// parseDSN validates the DSN and applies the connection settings the store
// relies on.
func parseDSN(dsn string) (*mysql.Config, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	c.ParseTime = true
	c.MultiStatements = false
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	if _, ok := c.Params["charset"]; !ok {
		c.Params["charset"] = "utf8mb4"
	}
	return c, nil
}

// NewRepository connects to MySQL and returns a Store plus a Close function.
func NewRepository(ctx context.Context, cfg Config) (*sqlstore.Store, func(), error) {
	mc, err := parseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
	}
	st, err := sqlstore.New(ctx, db, dialect{}, sqlstore.WithBatchSize(cfg.BatchSize))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return st, func() { _ = db.Close() }, nil
}
