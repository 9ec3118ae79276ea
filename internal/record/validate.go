package record

import (
	"fmt"

	"tableload/internal/schema"
)

// ValidationError reports the first record that does not conform to a
// schema. Index is the record's position in the batch; Path is the dotted
// field path, with list positions as "[i]".
type ValidationError struct {
	Index  int
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Path, e.Reason)
}

// Validate checks every record against s and returns a *ValidationError for
// the first violation:
//
//   - REQUIRED fields must be present and non-null
//   - scalars must match the declared type (FLOAT also accepts integers)
//   - REPEATED fields must be lists of non-null elements
//   - RECORD fields must be nested records (or lists of them when repeated)
//   - fields not declared in the schema are rejected
func Validate(s schema.Schema, recs []Record) error {
	fields := s.Fields()
	for i, r := range recs {
		if path, reason := checkRecord("", fields, r); path != "" || reason != "" {
			return &ValidationError{Index: i, Path: path, Reason: reason}
		}
	}
	return nil
}

func checkRecord(parent string, fields []schema.FieldDescriptor, r Record) (string, string) {
	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f.Name] = struct{}{}
		path := join(parent, f.Name)
		v, ok := r[f.Name]
		if !ok || v.IsNull() {
			if f.Required() {
				return path, "required field is missing or null"
			}
			continue
		}
		if p, reason := checkField(path, f, v); reason != "" {
			return p, reason
		}
	}
	for _, k := range r.Keys() {
		if _, ok := declared[k]; !ok {
			return join(parent, k), "field is not declared in the schema"
		}
	}
	return "", ""
}

func checkField(path string, f schema.FieldDescriptor, v Value) (string, string) {
	if f.Repeated() {
		if v.kind != KindList {
			return path, fmt.Sprintf("REPEATED field holds a %s, want list", v.kind)
		}
		for i, e := range v.list {
			ep := fmt.Sprintf("%s[%d]", path, i)
			if e.IsNull() {
				return ep, "REPEATED field element is null"
			}
			if p, reason := checkSingle(ep, f, e); reason != "" {
				return p, reason
			}
		}
		return "", ""
	}
	return checkSingle(path, f, v)
}

func checkSingle(path string, f schema.FieldDescriptor, v Value) (string, string) {
	if f.Type == schema.TypeRecord {
		if v.kind != KindRecord {
			return path, fmt.Sprintf("RECORD field holds a %s, want nested record", v.kind)
		}
		return checkRecord(path, f.Children, v.rec)
	}
	if v.kind != KindScalar {
		return path, fmt.Sprintf("%s field holds a %s, want scalar", f.Type, v.kind)
	}
	ok := false
	switch f.Type {
	case schema.TypeString:
		_, ok = v.scalar.(string)
	case schema.TypeInteger:
		_, ok = v.scalar.(int64)
	case schema.TypeBoolean:
		_, ok = v.scalar.(bool)
	case schema.TypeFloat:
		switch v.scalar.(type) {
		case float64, int64:
			ok = true
		}
	}
	if !ok {
		return path, fmt.Sprintf("value of Go type %T does not match %s", v.scalar, f.Type)
	}
	return "", ""
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
