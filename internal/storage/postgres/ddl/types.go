// Package ddl contains Postgres-specific helpers for generating DDL.
package ddl

import (
	"tableload/internal/schema"
	"tableload/internal/storage"
)

// MapType maps a top-level schema field onto a Postgres column type.
//
//	INTEGER            -> BIGINT
//	FLOAT              -> DOUBLE PRECISION
//	BOOLEAN            -> BOOLEAN
//	STRING             -> TEXT
//	RECORD or REPEATED -> JSONB
func MapType(f schema.FieldDescriptor) string {
	if storage.JSONColumn(f) {
		return "JSONB"
	}
	switch f.Type {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
