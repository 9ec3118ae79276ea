// Package ddl contains MySQL-specific helpers for generating DDL.
package ddl

import (
	"strings"

	gddl "tableload/internal/ddl"
	"tableload/internal/schema"
	"tableload/internal/storage"
)

// MapType maps a top-level schema field onto a MySQL column type.
//
//	INTEGER            -> BIGINT
//	FLOAT              -> DOUBLE
//	BOOLEAN            -> BOOLEAN
//	STRING             -> LONGTEXT
//	RECORD or REPEATED -> JSON
func MapType(f schema.FieldDescriptor) string {
	if storage.JSONColumn(f) {
		return "JSON"
	}
	switch f.Type {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE"
	case schema.TypeBoolean:
		return "BOOLEAN"
	default:
		return "LONGTEXT"
	}
}

// QuoteIdent backtick-quotes a MySQL identifier.
func QuoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// BuildCreateTableSQL returns the CREATE TABLE statement for a table named
// name (unquoted) holding schema s. Tables use InnoDB so commits are
// transactional.
func BuildCreateTableSQL(name string, s schema.Schema) (string, error) {
	td, err := gddl.FromSchema(QuoteIdent(name), s, MapType, QuoteIdent)
	if err != nil {
		return "", err
	}
	stmt, err := gddl.BuildCreateTableSQL(td)
	if err != nil {
		return "", err
	}
	return stmt + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", nil
}

// MetaTableSQL returns the idempotent CREATE statement for the schema
// metadata table.
func MetaTableSQL() string {
	stmt, _ := gddl.BuildCreateTableSQL(gddl.MetaTableDef(QuoteIdent(gddl.MetaTable), "VARCHAR(255)", "LONGTEXT", QuoteIdent))
	return gddl.IfNotExists(stmt) + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
}
