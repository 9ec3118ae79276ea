package sink

import (
	"errors"
	"testing"
)

func TestParseTableRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    TableRef
		wantErr bool
	}{
		{in: "ds.people", want: TableRef{Dataset: "ds", Table: "people"}},
		{in: "my-project:ds.people", want: TableRef{Project: "my-project", Dataset: "ds", Table: "people"}},
		{in: "_p:_d._t", want: TableRef{Project: "_p", Dataset: "_d", Table: "_t"}},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "people", wantErr: true},
		{in: "ds.", wantErr: true},
		{in: ".people", wantErr: true},
		{in: "p:ds", wantErr: true},
		{in: ":ds.people", wantErr: true},
		{in: "ds.people.extra", wantErr: true},
		{in: "ds-1.people", wantErr: true},
		{in: "1ds.people", wantErr: true},
		{in: "p:q:ds.people", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTableRef(tt.in)
			if tt.wantErr {
				var ite *InvalidTargetError
				if !errors.As(err, &ite) {
					t.Fatalf("ParseTableRef(%q) error = %v, want *InvalidTargetError", tt.in, err)
				}
				if ite.Target != tt.in {
					t.Fatalf("InvalidTargetError.Target = %q, want %q", ite.Target, tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTableRef(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseTableRef(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Fatalf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestParseDisposition(t *testing.T) {
	t.Parallel()

	d, err := ParseDisposition("", "")
	if err != nil || d != DefaultDisposition() {
		t.Fatalf("ParseDisposition(\"\", \"\") = %v, %v; want default", d, err)
	}
	if d != (Disposition{}) {
		t.Fatalf("zero Disposition is not the default")
	}

	d, err = ParseDisposition("create_never", "Write_Truncate")
	if err != nil {
		t.Fatalf("ParseDisposition() error = %v", err)
	}
	if d.Create != CreateNever || d.Write != WriteTruncate {
		t.Fatalf("ParseDisposition() = %v", d)
	}
	if got := d.String(); got != "CREATE_NEVER/WRITE_TRUNCATE" {
		t.Fatalf("String() = %s", got)
	}

	if _, err := ParseDisposition("CREATE_SOMETIMES", ""); err == nil {
		t.Fatalf("bad create disposition accepted")
	}
	if _, err := ParseDisposition("", "WRITE_TWICE"); err == nil {
		t.Fatalf("bad write disposition accepted")
	}
}
