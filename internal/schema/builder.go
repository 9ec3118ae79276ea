package schema

import (
	"golang.org/x/text/unicode/norm"
)

// node is a mutable field under construction.
type node struct {
	name     string
	typ      FieldType
	mode     FieldMode
	children *FieldBuilder
}

// FieldBuilder accumulates an ordered list of sibling fields. The root
// Builder and every nested RECORD field use one.
type FieldBuilder struct {
	nodes []*node
}

// FieldHandle refers to a field added through AddField.
type FieldHandle struct {
	n *node
}

// Name returns the (NFC-normalized) field name.
func (h FieldHandle) Name() string { return h.n.name }

// Type returns the declared field type.
func (h FieldHandle) Type() FieldType { return h.n.typ }

// Mode returns the declared field mode.
func (h FieldHandle) Mode() FieldMode { return h.n.mode }

// Nested returns the child builder of the field. Children may only be added
// to RECORD fields; Build rejects children on any other type.
func (h FieldHandle) Nested() *FieldBuilder {
	if h.n.children == nil {
		h.n.children = &FieldBuilder{}
	}
	return h.n.children
}

// AddField appends a field and returns a handle to it. Names are normalized
// to Unicode NFC.
func (b *FieldBuilder) AddField(name string, typ FieldType, mode FieldMode) FieldHandle {
	n := &node{name: norm.NFC.String(name), typ: typ, mode: mode}
	b.nodes = append(b.nodes, n)
	return FieldHandle{n: n}
}

// AddNestedField appends a RECORD field and returns the builder for its
// children.
func (b *FieldBuilder) AddNestedField(name string, mode FieldMode) *FieldBuilder {
	return b.AddField(name, TypeRecord, mode).Nested()
}

// Builder assembles a Schema. Fields are kept in call order.
type Builder struct {
	FieldBuilder
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Build validates the tree and returns a frozen Schema. Later changes to the
// builder do not affect schemas already built.
func (b *Builder) Build() (Schema, error) {
	if len(b.nodes) == 0 {
		return Schema{}, &Error{Reason: "schema has no fields"}
	}
	fields, err := freeze("", b.nodes)
	if err != nil {
		return Schema{}, err
	}
	return Schema{fields: fields}, nil
}

func freeze(parent string, nodes []*node) ([]FieldDescriptor, error) {
	seen := make(map[string]struct{}, len(nodes))
	out := make([]FieldDescriptor, 0, len(nodes))
	for _, n := range nodes {
		path := joinPath(parent, n.name)
		if n.name == "" {
			return nil, &Error{Path: path, Reason: "field name must not be empty"}
		}
		if _, dup := seen[n.name]; dup {
			return nil, &Error{Path: path, Reason: "duplicate field name among siblings"}
		}
		seen[n.name] = struct{}{}

		if !n.typ.Valid() {
			return nil, &Error{Path: path, Reason: "invalid field type " + n.typ.String()}
		}
		if !n.mode.Valid() {
			return nil, &Error{Path: path, Reason: "invalid field mode " + n.mode.String()}
		}

		var kids []*node
		if n.children != nil {
			kids = n.children.nodes
		}
		switch {
		case n.typ != TypeRecord && len(kids) > 0:
			return nil, &Error{Path: path, Reason: n.typ.String() + " field must not have children"}
		case n.typ == TypeRecord && len(kids) == 0:
			return nil, &Error{Path: path, Reason: "RECORD field must have at least one child"}
		}

		fd := FieldDescriptor{Name: n.name, Type: n.typ, Mode: n.mode}
		if len(kids) > 0 {
			children, err := freeze(path, kids)
			if err != nil {
				return nil, err
			}
			fd.Children = children
		}
		out = append(out, fd)
	}
	return out, nil
}
