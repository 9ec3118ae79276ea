// Package ddl contains SQL Server-specific helpers for generating DDL.
package ddl

import (
	"tableload/internal/schema"
	"tableload/internal/storage"
)

// MapType maps a top-level schema field onto a SQL Server column type.
//
//	INTEGER            -> BIGINT
//	FLOAT              -> FLOAT
//	BOOLEAN            -> BIT
//	STRING             -> NVARCHAR(MAX)
//	RECORD or REPEATED -> NVARCHAR(MAX) holding JSON
func MapType(f schema.FieldDescriptor) string {
	if storage.JSONColumn(f) {
		return "NVARCHAR(MAX)"
	}
	switch f.Type {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "FLOAT"
	case schema.TypeBoolean:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}
