// Package builtin contains simple, reusable post-transform steps.
package builtin

import (
	"strings"

	"tableload/internal/record"
)

const nbspace = "\u00a0"

// Normalize trims edge whitespace from every string scalar and replaces
// U+00A0 NO-BREAK SPACE with an ASCII space. Nested records and lists are
// walked recursively. Non-string values pass through unchanged.
type Normalize struct{}

// Apply returns a normalized copy of r. The input record is not modified.
func (Normalize) Apply(r record.Record) (record.Record, error) {
	if r == nil {
		return nil, nil
	}
	out := make(record.Record, len(r))
	for k, v := range r {
		out[k] = normalizeValue(v)
	}
	return out, nil
}

func normalizeValue(v record.Value) record.Value {
	switch v.Kind() {
	case record.KindScalar:
		s, ok := v.StringValue()
		if !ok {
			return v
		}
		if strings.Contains(s, nbspace) {
			s = strings.ReplaceAll(s, nbspace, " ")
		} else if !HasEdgeSpace(s) {
			return v
		}
		return record.String(strings.TrimSpace(s))
	case record.KindRecord:
		nested, _ := v.Record()
		n, _ := Normalize{}.Apply(nested)
		return record.Nested(n)
	case record.KindList:
		elems, _ := v.List()
		for i, e := range elems {
			elems[i] = normalizeValue(e)
		}
		return record.List(elems...)
	}
	return v
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace
// (space, tab, LF, CR).
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
