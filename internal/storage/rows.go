package storage

import (
	"fmt"

	"tableload/internal/record"
	"tableload/internal/schema"
)

// Flatten maps records onto one column per top-level schema field, in schema
// order. Scalars pass through as string, int64, float64 or bool. RECORD and
// REPEATED values become JSON text, and absent or null values become nil.
func Flatten(s schema.Schema, recs []record.Record) (columns []string, rows [][]any, err error) {
	fields := s.Fields()
	columns = make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	rows = make([][]any, len(recs))
	for i, r := range recs {
		row := make([]any, len(fields))
		for j, f := range fields {
			if row[j], err = columnValue(f, r); err != nil {
				return nil, nil, fmt.Errorf("record %d: %s: %w", i, f.Name, err)
			}
		}
		rows[i] = row
	}
	return columns, rows, nil
}

// JSONColumn reports whether f is stored as JSON text by the SQL backends.
func JSONColumn(f schema.FieldDescriptor) bool {
	return f.Repeated() || f.Type == schema.TypeRecord
}

func columnValue(f schema.FieldDescriptor, r record.Record) (any, error) {
	v, ok := r.Get(f.Name)
	if !ok || v.IsNull() {
		return nil, nil
	}
	if JSONColumn(f) {
		b, err := record.EncodeField(f, v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	x, ok := v.Scalar()
	if !ok {
		return nil, fmt.Errorf("%s value in %s column", v.Kind(), f.Type)
	}
	return x, nil
}

// CheckRequired returns an error for the first record missing a REQUIRED
// top-level field. It mirrors the NOT NULL constraint of the SQL backends for
// stores without column constraints.
func CheckRequired(s schema.Schema, recs []record.Record) error {
	fields := s.Fields()
	for i, r := range recs {
		for _, f := range fields {
			if !f.Required() {
				continue
			}
			if v, ok := r.Get(f.Name); !ok || v.IsNull() {
				return fmt.Errorf("record %d: %s: required field is null", i, f.Name)
			}
		}
	}
	return nil
}
