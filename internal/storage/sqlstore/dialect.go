// Package sqlstore implements storage.Store on top of database/sql for the
// backends that share its transaction model (SQLite, MySQL, SQL Server).
// Each backend supplies a Dialect with its quoting, placeholders and type
// mapping; the table lifecycle and commit protocol live here.
//
// A table is considered to exist when it has a row in the schema metadata
// table (ddl.MetaTable). That row holds the declared schema as JSON, so
// Describe can return nested and repeated field definitions that the
// flattened SQL columns cannot express.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"tableload/internal/schema"
	"tableload/internal/storage"
)

// Dialect captures the SQL differences between backends.
type Dialect interface {
	// Name is the backend kind, used in error prefixes and logs.
	Name() string
	// Quote quotes a single identifier.
	Quote(ident string) string
	// TableName returns the quoted physical name of t.
	TableName(t storage.Table) string
	// Placeholder returns the bind marker for the n-th (1-based) parameter.
	Placeholder(n int) string
	// MaxParams is the most bind parameters one statement may carry.
	MaxParams() int
	// CreateTable returns the statements that create t for s.
	CreateTable(t storage.Table, s schema.Schema) ([]string, error)
	// CreateMeta returns an idempotent statement creating the metadata table.
	CreateMeta() string
}

// BulkInserter is implemented by dialects with a native bulk-load path. The
// rows must be written inside tx so they commit or roll back with it.
type BulkInserter interface {
	BulkInsert(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error)
}

// FlatName joins the parts of t with "__" for backends without a usable
// schema namespace. Project hyphens become underscores.
func FlatName(t storage.Table) string {
	parts := make([]string, 0, 3)
	if t.Project != "" {
		parts = append(parts, strings.ReplaceAll(t.Project, "-", "_"))
	}
	parts = append(parts, t.Dataset, t.Name)
	return strings.Join(parts, "__")
}

// Namespace returns the schema namespace for t: the dataset, prefixed with
// the project when one is set.
func Namespace(t storage.Table) string {
	if t.Project == "" {
		return t.Dataset
	}
	return strings.ReplaceAll(t.Project, "-", "_") + "__" + t.Dataset
}

// QuestionMark is the "?" placeholder style used by SQLite and MySQL.
func QuestionMark(int) string { return "?" }

// AtP is the "@pN" placeholder style used by SQL Server.
func AtP(n int) string { return "@p" + strconv.Itoa(n) }

// Dollar is the "$N" placeholder style used by Postgres.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }
