package ddl

import (
	"strings"

	gddl "tableload/internal/ddl"
	"tableload/internal/schema"
)

// QuoteIdent double-quotes a SQLite identifier.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// BuildCreateTableSQL returns the CREATE TABLE statement for a table named
// name (unquoted) holding schema s.
func BuildCreateTableSQL(name string, s schema.Schema) (string, error) {
	td, err := gddl.FromSchema(QuoteIdent(name), s, MapType, QuoteIdent)
	if err != nil {
		return "", err
	}
	return gddl.BuildCreateTableSQL(td)
}

// MetaTableSQL returns the idempotent CREATE statement for the schema
// metadata table.
func MetaTableSQL() string {
	stmt, _ := gddl.BuildCreateTableSQL(gddl.MetaTableDef(QuoteIdent(gddl.MetaTable), "TEXT", "TEXT", QuoteIdent))
	return gddl.IfNotExists(stmt)
}
