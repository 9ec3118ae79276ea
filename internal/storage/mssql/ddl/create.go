package ddl

import (
	"fmt"
	"strings"

	gddl "tableload/internal/ddl"
	"tableload/internal/schema"
)

// QuoteIdent quotes a single identifier segment for SQL Server using
// bracket syntax, escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// QuoteFQN quotes a schema-qualified table name as [ns].[name].
func QuoteFQN(namespace, name string) string {
	return QuoteIdent(namespace) + "." + QuoteIdent(name)
}

func quoteLiteral(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BuildCreateTableSQL returns the statements that create namespace.name for
// schema s. CREATE SCHEMA must be the only statement in its batch, so it is
// wrapped in EXEC behind a SCHEMA_ID guard.
func BuildCreateTableSQL(namespace, name string, s schema.Schema) ([]string, error) {
	td, err := gddl.FromSchema(QuoteFQN(namespace, name), s, MapType, QuoteIdent)
	if err != nil {
		return nil, err
	}
	create, err := gddl.BuildCreateTableSQL(td)
	if err != nil {
		return nil, err
	}
	ensureSchema := fmt.Sprintf("IF SCHEMA_ID(%s) IS NULL EXEC(%s)",
		quoteLiteral(namespace), quoteLiteral("CREATE SCHEMA "+QuoteIdent(namespace)))
	return []string{ensureSchema, create}, nil
}

// MetaTableSQL returns the guarded CREATE statement for the schema metadata
// table. T-SQL has no CREATE TABLE IF NOT EXISTS.
func MetaTableSQL() string {
	name := QuoteIdent(gddl.MetaTable)
	stmt, _ := gddl.BuildCreateTableSQL(gddl.MetaTableDef(name, "NVARCHAR(450)", "NVARCHAR(MAX)", QuoteIdent))
	return fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NULL\n%s", quoteLiteral(name), stmt)
}
