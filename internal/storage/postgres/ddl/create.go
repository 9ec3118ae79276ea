package ddl

import (
	"strings"

	gddl "tableload/internal/ddl"
	"tableload/internal/schema"
)

// QuoteIdent double-quotes a Postgres identifier, escaping embedded quotes.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteFQN quotes a namespace and table name as "ns"."name".
func QuoteFQN(namespace, name string) string {
	return QuoteIdent(namespace) + "." + QuoteIdent(name)
}

// BuildCreateTableSQL returns the statements that create namespace.name for
// schema s: the schema namespace (idempotently) and then the table.
func BuildCreateTableSQL(namespace, name string, s schema.Schema) ([]string, error) {
	td, err := gddl.FromSchema(QuoteFQN(namespace, name), s, MapType, QuoteIdent)
	if err != nil {
		return nil, err
	}
	create, err := gddl.BuildCreateTableSQL(td)
	if err != nil {
		return nil, err
	}
	return []string{
		"CREATE SCHEMA IF NOT EXISTS " + QuoteIdent(namespace),
		create,
	}, nil
}

// MetaTableSQL returns the idempotent CREATE statement for the schema
// metadata table in the default search path.
func MetaTableSQL() string {
	stmt, _ := gddl.BuildCreateTableSQL(gddl.MetaTableDef(QuoteIdent(gddl.MetaTable), "TEXT", "JSONB", QuoteIdent))
	return gddl.IfNotExists(stmt)
}
