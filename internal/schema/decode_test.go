package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const peopleJSON = `{
  "fields": [
    {"name": "kind", "type": "string", "mode": "nullable"},
    {"name": "fullName", "type": "STRING", "mode": "REQUIRED"},
    {"name": "age", "type": "INT64"},
    {"name": "phoneNumber", "type": "record", "mode": "nullable", "fields": [
      {"name": "areaCode", "type": "integer"},
      {"name": "number", "type": "integer"}
    ]},
    {"name": "children", "type": "string", "mode": "repeated"}
  ]
}`

const peopleYAML = `
fields:
  - name: kind
    type: string
  - name: fullName
    type: string
    mode: required
  - name: age
    type: integer
  - name: phoneNumber
    type: record
    fields:
      - name: areaCode
        type: integer
      - name: number
        type: integer
  - name: children
    type: string
    mode: repeated
`

func TestParseJSON_MatchesBuilder(t *testing.T) {
	t.Parallel()

	s, err := ParseJSON([]byte(peopleJSON))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if path, reason, ok := Diff(peopleSchema(t), s); !ok {
		t.Fatalf("ParseJSON() differs from builder schema at %q: %s", path, reason)
	}
}

func TestParseYAML_MatchesBuilder(t *testing.T) {
	t.Parallel()

	s, err := ParseYAML([]byte(peopleYAML))
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	if path, reason, ok := Diff(peopleSchema(t), s); !ok {
		t.Fatalf("ParseYAML() differs from builder schema at %q: %s", path, reason)
	}
}

func TestParseJSON_BareArray(t *testing.T) {
	t.Parallel()

	s, err := ParseJSON([]byte(`[{"name":"id","type":"INTEGER","mode":"REQUIRED"}]`))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	f, ok := s.Field("id")
	if !ok || !f.Required() {
		t.Fatalf("Field(id) = %+v, %v", f, ok)
	}
}

func TestMarshalJSON_RoundTrip(t *testing.T) {
	t.Parallel()

	orig := peopleSchema(t)
	b, err := orig.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	back, err := ParseJSON(b)
	if err != nil {
		t.Fatalf("ParseJSON(MarshalJSON()) error = %v", err)
	}
	if !Equal(orig, back) {
		t.Fatalf("round trip changed schema: %s", b)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		wantPath string
	}{
		{"unknown type", `{"fields":[{"name":"r","type":"RECORD","fields":[{"name":"x","type":"DATE"}]}]}`, "r.x"},
		{"unknown mode", `{"fields":[{"name":"x","type":"STRING","mode":"OPTIONAL"}]}`, "x"},
		{"record without fields", `{"fields":[{"name":"r","type":"RECORD"}]}`, "r"},
		{"duplicate", `{"fields":[{"name":"x","type":"STRING"},{"name":"x","type":"STRING"}]}`, "x"},
		{"empty", `{"fields":[]}`, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseJSON([]byte(tt.in))
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("ParseJSON() error = %v, want *schema.Error", err)
			}
			if se.Path != tt.wantPath {
				t.Fatalf("error path = %q, want %q", se.Path, tt.wantPath)
			}
		})
	}
}

func TestLoad_ByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "people.json")
	yamlPath := filepath.Join(dir, "people.yaml")
	if err := os.WriteFile(jsonPath, []byte(peopleJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte(peopleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("Load(json) error = %v", err)
	}
	b, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load(yaml) error = %v", err)
	}
	if !Equal(a, b) {
		t.Fatalf("json and yaml schemas differ")
	}
}
