package schema

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// FieldDescriptor describes one field of a schema tree. Children is populated
// only for TypeRecord fields. A REPEATED RECORD is an array of structures; a
// REPEATED scalar is an array of scalars.
type FieldDescriptor struct {
	Name     string
	Type     FieldType
	Mode     FieldMode
	Children []FieldDescriptor
}

// Repeated reports whether the field holds an ordered sequence of values.
func (f FieldDescriptor) Repeated() bool { return f.Mode == ModeRepeated }

// Required reports whether the field must be present and non-null.
func (f FieldDescriptor) Required() bool { return f.Mode == ModeRequired }

// Child returns the direct child named name.
func (f FieldDescriptor) Child(name string) (FieldDescriptor, bool) {
	for _, c := range f.Children {
		if c.Name == name {
			return c, true
		}
	}
	return FieldDescriptor{}, false
}

func (f FieldDescriptor) clone() FieldDescriptor {
	out := f
	out.Children = cloneFields(f.Children)
	return out
}

func cloneFields(in []FieldDescriptor) []FieldDescriptor {
	if in == nil {
		return nil
	}
	out := make([]FieldDescriptor, len(in))
	for i, f := range in {
		out[i] = f.clone()
	}
	return out
}

// Schema is an ordered, validated sequence of top-level fields. Field order
// defines output column order. The zero Schema has no fields and is never
// produced by Build.
type Schema struct {
	fields []FieldDescriptor
}

// Fields returns a deep copy of the top-level fields in declaration order.
func (s Schema) Fields() []FieldDescriptor { return cloneFields(s.fields) }

// Len returns the number of top-level fields.
func (s Schema) Len() int { return len(s.fields) }

// IsZero reports whether s is the zero Schema.
func (s Schema) IsZero() bool { return len(s.fields) == 0 }

// Field returns the top-level field named name.
func (s Schema) Field(name string) (FieldDescriptor, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.clone(), true
		}
	}
	return FieldDescriptor{}, false
}

// Lookup resolves a dotted path such as "phoneNumber.areaCode".
func (s Schema) Lookup(path string) (FieldDescriptor, bool) {
	parts := strings.Split(path, ".")
	cur := FieldDescriptor{Type: TypeRecord, Children: s.fields}
	for _, p := range parts {
		next, ok := cur.Child(p)
		if !ok {
			return FieldDescriptor{}, false
		}
		cur = next
	}
	return cur.clone(), true
}

// ColumnNames returns the top-level field names in order.
func (s Schema) ColumnNames() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Walk visits every field depth-first in declaration order. A non-nil error
// from fn stops the walk and is returned.
func (s Schema) Walk(fn func(path string, f FieldDescriptor) error) error {
	return walk("", s.fields, fn)
}

func walk(parent string, fields []FieldDescriptor, fn func(string, FieldDescriptor) error) error {
	for _, f := range fields {
		p := joinPath(parent, f.Name)
		if err := fn(p, f); err != nil {
			return err
		}
		if err := walk(p, f.Children, fn); err != nil {
			return err
		}
	}
	return nil
}

// Fingerprint returns an xxh3 hash of the canonical JSON form of s. Equal
// schemas have equal fingerprints.
func (s Schema) Fingerprint() uint64 {
	b, err := s.MarshalJSON()
	if err != nil {
		return 0
	}
	return xxh3.Hash(b)
}

// Equal reports whether a and b describe the same field tree.
func Equal(a, b Schema) bool {
	_, _, ok := Diff(a, b)
	return ok
}

// Diff compares want against got and returns the path of the first
// difference and a description of it. ok is true when the trees match.
func Diff(want, got Schema) (path, reason string, ok bool) {
	return diffFields("", want.fields, got.fields)
}

func diffFields(parent string, want, got []FieldDescriptor) (string, string, bool) {
	for i, w := range want {
		p := joinPath(parent, w.Name)
		if i >= len(got) {
			return p, "field missing from existing definition", false
		}
		g := got[i]
		if g.Name != w.Name {
			return p, "field order or name differs (existing has " + strconv.Quote(g.Name) + ")", false
		}
		if g.Type != w.Type {
			return p, "type " + w.Type.String() + " != existing " + g.Type.String(), false
		}
		if g.Mode != w.Mode {
			return p, "mode " + w.Mode.String() + " != existing " + g.Mode.String(), false
		}
		if dp, r, ok := diffFields(p, w.Children, g.Children); !ok {
			return dp, r, false
		}
	}
	if len(got) > len(want) {
		return joinPath(parent, got[len(want)].Name), "unexpected field in existing definition", false
	}
	return "", "", true
}
