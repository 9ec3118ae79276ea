// Package record holds the structured output of a transform: a Record maps
// field names to Values, and a Value is exactly one of null, a scalar, a
// nested Record, or an ordered list of values.
package record

import (
	"fmt"
	"math"
	"sort"
)

// Kind tags the shape held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindRecord
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindRecord:
		return "record"
	case KindList:
		return "list"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is an immutable tagged value. Scalars are stored as string, int64,
// float64 or bool.
type Value struct {
	kind   Kind
	scalar any
	rec    Record
	list   []Value
}

// Null returns the null value. The zero Value is also null.
func Null() Value { return Value{} }

func String(s string) Value  { return Value{kind: KindScalar, scalar: s} }
func Int(i int64) Value      { return Value{kind: KindScalar, scalar: i} }
func Float(f float64) Value  { return Value{kind: KindScalar, scalar: f} }
func Bool(b bool) Value      { return Value{kind: KindScalar, scalar: b} }
func Nested(r Record) Value  { return Value{kind: KindRecord, rec: r.Clone()} }
func List(vs ...Value) Value { return Value{kind: KindList, list: append([]Value(nil), vs...)} }

// Strings builds a list of string scalars.
func Strings(ss ...string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = String(s)
	}
	return Value{kind: KindList, list: vs}
}

// Ints builds a list of integer scalars.
func Ints(is ...int64) Value {
	vs := make([]Value, len(is))
	for i, n := range is {
		vs[i] = Int(n)
	}
	return Value{kind: KindList, list: vs}
}

// Kind returns the shape of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Scalar returns the scalar payload (string, int64, float64 or bool).
func (v Value) Scalar() (any, bool) { return v.scalar, v.kind == KindScalar }

// Record returns the nested record.
func (v Value) Record() (Record, bool) { return v.rec.Clone(), v.kind == KindRecord }

// List returns a copy of the list elements.
func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]Value(nil), v.list...), true
}

// Len returns the number of list elements, or 0 for non-lists.
func (v Value) Len() int { return len(v.list) }

// Index returns the i-th list element.
func (v Value) Index(i int) Value { return v.list[i] }

// StringValue returns the string payload.
func (v Value) StringValue() (string, bool) {
	s, ok := v.scalar.(string)
	return s, ok
}

// IntValue returns the integer payload.
func (v Value) IntValue() (int64, bool) {
	i, ok := v.scalar.(int64)
	return i, ok
}

// Native converts v into plain Go values: nil, scalars, map[string]any and
// []any. Database drivers and encoders consume this form.
func (v Value) Native() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindRecord:
		return v.rec.Native()
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Native()
		}
		return out
	}
	return nil
}

// Equal reports deep equality of two values. NaN equals NaN.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		if a, ok := v.scalar.(float64); ok && math.IsNaN(a) {
			b, ok := o.scalar.(float64)
			return ok && math.IsNaN(b)
		}
		return v.scalar == o.scalar
	case KindRecord:
		return v.rec.Equal(o.rec)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string { return fmt.Sprint(v.Native()) }

// ValueOf converts a plain Go value into a Value. Integers of any width
// become int64, float32 becomes float64, map[string]any becomes a nested
// record and slices become lists.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case Record:
		return Nested(t), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("record: uint64 %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case []string:
		return Strings(t...), nil
	case []int64:
		return Ints(t...), nil
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			vs[i] = ev
		}
		return Value{kind: KindList, list: vs}, nil
	case map[string]any:
		r, err := FromMap(t)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindRecord, rec: r}, nil
	}
	return Value{}, fmt.Errorf("record: unsupported value type %T", x)
}

// Record maps field names to values.
type Record map[string]Value

// FromMap converts a plain map into a Record.
func FromMap(m map[string]any) (Record, error) {
	r := make(Record, len(m))
	for k, x := range m {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		r[k] = v
	}
	return r, nil
}

// MustFromMap is FromMap for literals known to be valid; it panics on error.
func MustFromMap(m map[string]any) Record {
	r, err := FromMap(m)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the value of field name and whether it is present.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r[name]
	return v, ok
}

// Clone returns a shallow copy of r. Values are immutable, so sharing them is
// safe.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Native converts r into a map[string]any.
func (r Record) Native() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Native()
	}
	return out
}

// Equal reports deep equality.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
