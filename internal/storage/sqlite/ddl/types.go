// Package ddl contains SQLite-specific helpers for generating DDL.
package ddl

import (
	"tableload/internal/schema"
	"tableload/internal/storage"
)

// MapType maps a top-level schema field onto a SQLite column type.
//
// SQLite types are affinities, so the mapping is coarse:
//   - INTEGER, BOOLEAN (0/1) -> INTEGER
//   - FLOAT                  -> REAL
//   - STRING                 -> TEXT
//   - RECORD or REPEATED     -> TEXT holding JSON
func MapType(f schema.FieldDescriptor) string {
	if storage.JSONColumn(f) {
		return "TEXT"
	}
	switch f.Type {
	case schema.TypeInteger, schema.TypeBoolean:
		return "INTEGER"
	case schema.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}
