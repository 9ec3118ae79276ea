// Package schema models structured record schemas: an ordered, validated tree
// of field descriptors supporting nested (RECORD) and repeated fields.
//
// Schemas are assembled with a Builder and frozen by Build. A frozen Schema is
// immutable and safe to share read-only across goroutines.
package schema

import (
	"fmt"
	"strings"
)

// FieldType is the declared value type of a field.
type FieldType uint8

const (
	TypeUnknown FieldType = iota
	TypeString
	TypeInteger
	TypeBoolean
	TypeFloat
	TypeRecord
)

var typeNames = [...]string{
	TypeUnknown: "UNKNOWN",
	TypeString:  "STRING",
	TypeInteger: "INTEGER",
	TypeBoolean: "BOOLEAN",
	TypeFloat:   "FLOAT",
	TypeRecord:  "RECORD",
}

func (t FieldType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("FieldType(%d)", t)
}

// Valid reports whether t is one of the declared field types.
func (t FieldType) Valid() bool { return t >= TypeString && t <= TypeRecord }

// Scalar reports whether t is a leaf type.
func (t FieldType) Scalar() bool { return t.Valid() && t != TypeRecord }

// ParseType maps a type name to a FieldType. Matching is case-insensitive and
// accepts the common aliases used by table services (INT64, FLOAT64, BOOL,
// STRUCT).
func ParseType(s string) (FieldType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STRING":
		return TypeString, nil
	case "INTEGER", "INT64", "INT":
		return TypeInteger, nil
	case "BOOLEAN", "BOOL":
		return TypeBoolean, nil
	case "FLOAT", "FLOAT64", "DOUBLE":
		return TypeFloat, nil
	case "RECORD", "STRUCT":
		return TypeRecord, nil
	}
	return TypeUnknown, fmt.Errorf("unknown field type %q", s)
}

// FieldMode is the cardinality of a field.
type FieldMode uint8

const (
	ModeUnknown FieldMode = iota
	ModeNullable
	ModeRequired
	ModeRepeated
)

var modeNames = [...]string{
	ModeUnknown:  "UNKNOWN",
	ModeNullable: "NULLABLE",
	ModeRequired: "REQUIRED",
	ModeRepeated: "REPEATED",
}

func (m FieldMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("FieldMode(%d)", m)
}

// Valid reports whether m is one of the declared modes.
func (m FieldMode) Valid() bool { return m >= ModeNullable && m <= ModeRepeated }

// ParseMode maps a mode name to a FieldMode. An empty string yields
// ModeNullable, matching the default of declarative schema files.
func ParseMode(s string) (FieldMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NULLABLE":
		return ModeNullable, nil
	case "REQUIRED":
		return ModeRequired, nil
	case "REPEATED":
		return ModeRepeated, nil
	}
	return ModeUnknown, fmt.Errorf("unknown field mode %q", s)
}
