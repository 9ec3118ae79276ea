package builtin

import (
	"errors"
	"testing"

	"tableload/internal/record"
)

/*
TestNormalizeApply_TableDriven verifies the core normalization semantics of
Normalize.Apply:

  - Replaces U+00A0 NO-BREAK SPACE (NBSP) with ASCII space.
  - Trims leading/trailing ASCII whitespace (space, tab, LF, CR).
  - Leaves non-string values unchanged.
  - Recurses into nested records and lists.
*/
func TestNormalizeApply_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   record.Record
		want record.Record
	}{
		{
			name: "no_strings_no_change",
			in:   record.Record{"a": record.Int(1), "b": record.Bool(true), "c": record.Null()},
			want: record.Record{"a": record.Int(1), "b": record.Bool(true), "c": record.Null()},
		},
		{
			name: "simple_trim_spaces",
			in:   record.Record{"a": record.String(" foo "), "b": record.String("\tbar\n")},
			want: record.Record{"a": record.String("foo"), "b": record.String("bar")},
		},
		{
			name: "nbsp_replaced_and_trimmed",
			in:   record.Record{"a": record.String(" " + nbspace + "foo" + nbspace + " ")},
			want: record.Record{"a": record.String("foo")},
		},
		{
			name: "nbsp_internal_only",
			in:   record.Record{"a": record.String("foo" + nbspace + "bar")},
			want: record.Record{"a": record.String("foo bar")},
		},
		{
			name: "nested_record",
			in: record.Record{"p": record.Nested(record.Record{
				"x": record.String(" y "),
				"n": record.Int(3),
			})},
			want: record.Record{"p": record.Nested(record.Record{
				"x": record.String("y"),
				"n": record.Int(3),
			})},
		},
		{
			name: "list_elements",
			in:   record.Record{"c": record.Strings(" a", "b"+nbspace, "c")},
			want: record.Record{"c": record.Strings("a", "b", "c")},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			before := tc.in.Clone()
			got, err := Normalize{}.Apply(tc.in)
			if err != nil {
				t.Fatalf("Normalize.Apply() error = %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("Normalize.Apply() mismatch:\n got: %v\nwant: %v", got.Native(), tc.want.Native())
			}
			if !tc.in.Equal(before) {
				t.Fatalf("Normalize.Apply() mutated its input")
			}
		})
	}
}

func TestNormalizeApply_Nil(t *testing.T) {
	t.Parallel()

	got, err := Normalize{}.Apply(nil)
	if err != nil || got != nil {
		t.Fatalf("Normalize.Apply(nil) = %v, %v; want nil, nil", got, err)
	}
}

/*
TestHasEdgeSpace verifies that HasEdgeSpace detects leading/trailing ASCII
whitespace and ignores interior-only whitespace.
*/
func TestHasEdgeSpace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "empty", in: "", want: false},
		{name: "no_spaces", in: "foo", want: false},
		{name: "leading_space", in: " foo", want: true},
		{name: "trailing_space", in: "foo ", want: true},
		{name: "internal_space_only", in: "f oo", want: false},
		{name: "leading_tab", in: "\tfoo", want: true},
		{name: "trailing_newline", in: "foo\n", want: true},
		{name: "leading_carriage_return", in: "\rfoo", want: true},
		{name: "internal_tab_only", in: "f\too", want: false},
		{name: "single_space", in: " ", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := HasEdgeSpace(tt.in); got != tt.want {
				t.Fatalf("HasEdgeSpace(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

/*
TestRequireApply covers presence semantics:

  - Absent, null and empty-string values are missing.
  - Zero numbers and false are present.
  - The first missing field in declaration order is reported.
*/
func TestRequireApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fields      []string
		in          record.Record
		wantMissing string
	}{
		{name: "all_present", fields: []string{"a"}, in: record.Record{"a": record.String("x")}},
		{name: "absent", fields: []string{"a"}, in: record.Record{"b": record.String("x")}, wantMissing: "a"},
		{name: "null", fields: []string{"a"}, in: record.Record{"a": record.Null()}, wantMissing: "a"},
		{name: "empty_string", fields: []string{"a"}, in: record.Record{"a": record.String("")}, wantMissing: "a"},
		{name: "zero_and_false_present", fields: []string{"a", "b"}, in: record.Record{"a": record.Int(0), "b": record.Bool(false)}},
		{name: "first_missing_reported", fields: []string{"a", "b", "c"}, in: record.Record{"a": record.Int(1)}, wantMissing: "b"},
		{name: "no_fields", fields: nil, in: record.Record{}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Require{Fields: tc.fields}.Apply(tc.in)
			if tc.wantMissing == "" {
				if err != nil {
					t.Fatalf("Require.Apply() error = %v", err)
				}
				if !got.Equal(tc.in) {
					t.Fatalf("Require.Apply() changed the record")
				}
				return
			}
			var mf *MissingFieldError
			if !errors.As(err, &mf) || mf.Field != tc.wantMissing {
				t.Fatalf("Require.Apply() error = %v, want missing %q", err, tc.wantMissing)
			}
		})
	}
}

func BenchmarkNormalizeApply(b *testing.B) {
	r := record.Record{
		"a": record.String(" foo "),
		"b": record.String("baz" + nbspace + "qux"),
		"c": record.Int(123),
		"d": record.Strings("\tleading", "trailing\n"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Normalize{}.Apply(r)
	}
}
