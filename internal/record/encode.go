package record

import (
	"bytes"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"tableload/internal/schema"
)

// Non-finite floats have no JSON number form; they are written as these
// strings and read back as floats for FLOAT fields.
const (
	nanToken    = "NaN"
	posInfToken = "+Inf"
	negInfToken = "-Inf"
)

// MarshalJSON encodes v in its natural JSON form. Record keys are sorted, so
// the output is deterministic.
func (v Value) MarshalJSON() ([]byte, error) { return appendValue(nil, v) }

// Encode writes r as one JSON object with keys in schema order. Nested
// records follow their child order. Fields absent from r are omitted; fields
// not declared in the schema are appended in sorted key order. The output is
// a pure function of (s, r).
func Encode(s schema.Schema, r Record) ([]byte, error) {
	return appendRecord(nil, s.Fields(), r)
}

// EncodeBatch writes recs as newline-delimited JSON using Encode.
func EncodeBatch(s schema.Schema, recs []Record) ([]byte, error) {
	fields := s.Fields()
	var buf []byte
	for i, r := range recs {
		var err error
		buf, err = appendRecord(buf, fields, r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		buf = append(buf, '\n')
	}
	return buf, nil
}

// Checksum returns the xxh3 hash of EncodeBatch(s, recs). Identical batches
// hash identically.
func Checksum(s schema.Schema, recs []Record) (uint64, error) {
	b, err := EncodeBatch(s, recs)
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(b), nil
}

// EncodeField writes a single field value as JSON, nested records in child
// order. SQL backends use it for RECORD and REPEATED columns.
func EncodeField(f schema.FieldDescriptor, v Value) ([]byte, error) {
	return appendField(nil, f, v)
}

func appendRecord(dst []byte, fields []schema.FieldDescriptor, r Record) ([]byte, error) {
	dst = append(dst, '{')
	n := 0
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.Name] = struct{}{}
		v, ok := r[f.Name]
		if !ok {
			continue
		}
		var err error
		if dst, err = appendKey(dst, f.Name, n); err != nil {
			return nil, err
		}
		if dst, err = appendField(dst, f, v); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		n++
	}
	for _, k := range r.Keys() {
		if _, ok := known[k]; ok {
			continue
		}
		var err error
		if dst, err = appendKey(dst, k, n); err != nil {
			return nil, err
		}
		if dst, err = appendValue(dst, r[k]); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		n++
	}
	return append(dst, '}'), nil
}

func appendKey(dst []byte, key string, n int) ([]byte, error) {
	if n > 0 {
		dst = append(dst, ',')
	}
	b, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	dst = append(dst, b...)
	return append(dst, ':'), nil
}

func appendField(dst []byte, f schema.FieldDescriptor, v Value) ([]byte, error) {
	switch v.kind {
	case KindRecord:
		return appendRecord(dst, f.Children, v.rec)
	case KindList:
		elem := f
		elem.Mode = schema.ModeNullable
		dst = append(dst, '[')
		for i, e := range v.list {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendField(dst, elem, e); err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return append(dst, ']'), nil
	}
	return appendScalar(dst, v.scalar)
}

// appendValue writes a value that has no schema: record keys sorted.
func appendValue(dst []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindRecord:
		dst = append(dst, '{')
		for i, k := range v.rec.Keys() {
			var err error
			if dst, err = appendKey(dst, k, i); err != nil {
				return nil, err
			}
			if dst, err = appendValue(dst, v.rec[k]); err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
		}
		return append(dst, '}'), nil
	case KindList:
		dst = append(dst, '[')
		for i, e := range v.list {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendValue(dst, e); err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return append(dst, ']'), nil
	}
	return appendScalar(dst, v.scalar)
}

func appendScalar(dst []byte, x any) ([]byte, error) {
	if f, ok := x.(float64); ok {
		switch {
		case math.IsNaN(f):
			x = nanToken
		case math.IsInf(f, 1):
			x = posInfToken
		case math.IsInf(f, -1):
			x = negInfToken
		}
	}
	b, err := json.Marshal(x)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

func nonFinite(s string) (float64, bool) {
	switch s {
	case nanToken:
		return math.NaN(), true
	case posInfToken:
		return math.Inf(1), true
	case negInfToken:
		return math.Inf(-1), true
	}
	return 0, false
}

// Decode parses one JSON object produced by Encode back into a Record, using
// the schema to restore INTEGER and FLOAT scalars exactly.
func Decode(s schema.Schema, b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("record: decode: %w", err)
	}
	return fromJSON(s.Fields(), m)
}

// DecodeBatch parses newline-delimited JSON produced by EncodeBatch.
func DecodeBatch(s schema.Schema, b []byte) ([]Record, error) {
	var out []Record
	for i, line := range bytes.Split(b, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		r, err := Decode(s, line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func fromJSON(fields []schema.FieldDescriptor, m map[string]any) (Record, error) {
	r := make(Record, len(m))
	for k, x := range m {
		f, ok := findField(fields, k)
		if !ok {
			v, err := untyped(x)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			r[k] = v
			continue
		}
		v, err := typed(f, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		r[k] = v
	}
	return r, nil
}

func findField(fields []schema.FieldDescriptor, name string) (schema.FieldDescriptor, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return schema.FieldDescriptor{}, false
}

func typed(f schema.FieldDescriptor, x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case []any:
		elem := f
		elem.Mode = schema.ModeNullable
		vs := make([]Value, len(t))
		for i, e := range t {
			v, err := typed(elem, e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			vs[i] = v
		}
		return Value{kind: KindList, list: vs}, nil
	case map[string]any:
		r, err := fromJSON(f.Children, t)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindRecord, rec: r}, nil
	case json.Number:
		if f.Type == schema.TypeFloat {
			fl, err := t.Float64()
			if err != nil {
				return Value{}, err
			}
			return Float(fl), nil
		}
		return untyped(t)
	case string:
		if f.Type == schema.TypeFloat {
			if fl, ok := nonFinite(t); ok {
				return Float(fl), nil
			}
		}
	}
	return untyped(x)
}

func untyped(x any) (Value, error) {
	switch t := x.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		fl, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(fl), nil
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			v, err := untyped(e)
			if err != nil {
				return Value{}, err
			}
			vs[i] = v
		}
		return Value{kind: KindList, list: vs}, nil
	case map[string]any:
		r, err := fromJSON(nil, t)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindRecord, rec: r}, nil
	}
	return ValueOf(x)
}
