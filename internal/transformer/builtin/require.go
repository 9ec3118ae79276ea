package builtin

import (
	"fmt"

	"tableload/internal/record"
)

// Require fails a record that lacks a value for any of Fields. A field is
// missing when it is absent, null, or an empty string. Zero numbers and
// false are present.
//
// A transform emits exactly one record per input, so Require rejects instead
// of filtering.
type Require struct {
	Fields []string
}

// MissingFieldError names the first required field that was missing.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field %q is missing or empty", e.Field)
}

func (q Require) Apply(r record.Record) (record.Record, error) {
	for _, f := range q.Fields {
		v, ok := r.Get(f)
		if !ok || v.IsNull() {
			return nil, &MissingFieldError{Field: f}
		}
		if s, isStr := v.StringValue(); isStr && s == "" {
			return nil, &MissingFieldError{Field: f}
		}
	}
	return r, nil
}
