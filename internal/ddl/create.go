// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to derive it from a schema and render CREATE TABLE statements.
//
// The package does not quote identifiers itself. Backend packages (e.g.,
// internal/storage/postgres/ddl) pass their quoting and type mapping into
// FromSchema and wrap BuildCreateTableSQL as needed.
package ddl

import (
	"fmt"
	"strings"

	"tableload/internal/schema"
)

// MetaTable records the declared schema of every table the tool creates.
const MetaTable = "tableload_schemas"

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.FQN must be non-empty; it is emitted verbatim as the table name.
//
//   - Each column must have a non-empty Name and SQLType.
//
//   - A column is rendered as:
//
//     <Name> <SQLType> [NOT NULL]
//
//   - Columns with PrimaryKey == true are collected into a trailing
//     PRIMARY KEY (<col1>, <col2>, ...) clause.
//
// The statement has no IF NOT EXISTS clause; creating an existing table is
// an error.
func BuildCreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(name)
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, name)
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE %s (\n  %s\n)",
		fqn,
		strings.Join(cols, ",\n  "),
	), nil
}

// MapFunc returns the SQL column type for a top-level schema field.
type MapFunc func(f schema.FieldDescriptor) string

// FromSchema derives a table definition with one column per top-level field.
// REQUIRED fields become NOT NULL; quote is applied to every column name.
func FromSchema(fqn string, s schema.Schema, mapType MapFunc, quote func(string) string) (TableDef, error) {
	if s.IsZero() {
		return TableDef{}, fmt.Errorf("ddl: schema for %s has no fields", fqn)
	}
	if quote == nil {
		quote = func(id string) string { return id }
	}
	fields := s.Fields()
	td := TableDef{FQN: fqn, Columns: make([]ColumnDef, 0, len(fields))}
	for _, f := range fields {
		td.Columns = append(td.Columns, ColumnDef{
			Name:     quote(f.Name),
			SQLType:  mapType(f),
			Nullable: !f.Required(),
		})
	}
	return td, nil
}

// MetaTableDef returns the definition of the schema metadata table.
// keyType must be indexable by the dialect (e.g. VARCHAR(255) in MySQL).
func MetaTableDef(fqn, keyType, textType string, quote func(string) string) TableDef {
	if quote == nil {
		quote = func(id string) string { return id }
	}
	return TableDef{
		FQN: fqn,
		Columns: []ColumnDef{
			{Name: quote("table_ref"), SQLType: keyType, PrimaryKey: true},
			{Name: quote("schema_json"), SQLType: textType},
			{Name: quote("fingerprint"), SQLType: keyType},
		},
	}
}

// IfNotExists rewrites a statement from BuildCreateTableSQL into the
// CREATE TABLE IF NOT EXISTS form understood by SQLite, MySQL and Postgres.
func IfNotExists(stmt string) string {
	return strings.Replace(stmt, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
}
