package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

const jobJSON = `{
  "job": "people",
  "source": { "kind": "ids", "ids": ["1", "2", "3"] },
  "schema": { "fields": [
    { "name": "fullName", "type": "STRING", "mode": "REQUIRED" },
    { "name": "phoneNumber", "type": "RECORD", "fields": [
      { "name": "areaCode", "type": "INTEGER" }
    ]},
    { "name": "children", "type": "STRING", "mode": "REPEATED" }
  ]},
  "transform": [
    { "kind": "normalize" },
    { "kind": "require", "options": { "fields": ["fullName"] } }
  ],
  "sink": { "target": "proj:ds.people", "create": "CREATE_IF_NEEDED", "write": "WRITE_TRUNCATE", "strict": true, "timeout": "5s" },
  "storage": { "kind": "sqlite", "dsn": "file:people.db", "options": { "batch_size": 250 } },
  "runtime": { "workers": 4 },
  "metrics": { "backend": "pushgateway", "pushgateway_url": "http://localhost:9091" }
}`

const jobYAML = `
job: people
source:
  kind: ids
  ids: ["1", "2", "3"]
schema:
  fields:
    - {name: fullName, type: STRING, mode: REQUIRED}
    - name: phoneNumber
      type: RECORD
      fields:
        - {name: areaCode, type: INTEGER}
    - {name: children, type: STRING, mode: REPEATED}
transform:
  - kind: normalize
  - kind: require
    options:
      fields: [fullName]
sink:
  target: proj:ds.people
  create: CREATE_IF_NEEDED
  write: WRITE_TRUNCATE
  strict: true
  timeout: 5s
storage:
  kind: sqlite
  dsn: file:people.db
  options:
    batch_size: 250
runtime:
  workers: 4
metrics:
  backend: pushgateway
  pushgateway_url: http://localhost:9091
`

func checkJob(t *testing.T, p Pipeline) {
	t.Helper()

	if p.Job != "people" || p.Source.Kind != "ids" || len(p.Source.IDs) != 3 {
		t.Fatalf("job/source = %+v", p)
	}
	if got := p.Schema.ColumnNames(); len(got) != 3 || got[1] != "phoneNumber" {
		t.Fatalf("schema columns = %v", got)
	}
	if f, ok := p.Schema.Lookup("phoneNumber.areaCode"); !ok || f.Type.String() != "INTEGER" {
		t.Fatalf("phoneNumber.areaCode = %+v, %v", f, ok)
	}
	if len(p.Transform) != 2 || p.Transform[1].Options.StringSlice("fields")[0] != "fullName" {
		t.Fatalf("transform = %+v", p.Transform)
	}
	if p.Sink.Target != "proj:ds.people" || p.Sink.Write != "WRITE_TRUNCATE" || !p.Sink.Strict {
		t.Fatalf("sink = %+v", p.Sink)
	}
	if d, err := p.Sink.TimeoutDuration(0); err != nil || d != 5*time.Second {
		t.Fatalf("TimeoutDuration() = %v, %v", d, err)
	}
	if p.Storage.Kind != "sqlite" || p.Storage.Options.Int("batch_size", 0) != 250 {
		t.Fatalf("storage = %+v", p.Storage)
	}
	if p.Runtime.Workers != 4 || p.Metrics.Backend != "pushgateway" {
		t.Fatalf("runtime/metrics = %+v %+v", p.Runtime, p.Metrics)
	}
	if issues := ValidatePipeline(p, "sqlite"); len(issues) != 0 {
		t.Fatalf("ValidatePipeline() = %+v, want none", issues)
	}
}

func TestDecode_JSONAndYAMLAgree(t *testing.T) {
	t.Parallel()

	pj, err := Decode("job.json", []byte(jobJSON))
	if err != nil {
		t.Fatalf("Decode(json) error = %v", err)
	}
	checkJob(t, pj)

	py, err := Decode("job.yaml", []byte(jobYAML))
	if err != nil {
		t.Fatalf("Decode(yaml) error = %v", err)
	}
	checkJob(t, py)

	if pj.Schema.Fingerprint() != py.Schema.Fingerprint() {
		t.Fatalf("schema fingerprints differ between JSON and YAML")
	}
}

func TestDecode_InvalidSchemaFails(t *testing.T) {
	t.Parallel()

	const js = `{"job":"x","schema":{"fields":[{"name":"a","type":"RECORD"}]}}`
	if _, err := Decode("job.json", []byte(js)); err == nil {
		t.Fatalf("Decode() with childless RECORD error = nil")
	}
}

func TestLoad_SchemaFileRelativeToJob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	schemaYAML := "fields:\n  - {name: id, type: INTEGER, mode: REQUIRED}\n  - {name: tags, type: STRING, mode: REPEATED}\n"
	if err := os.WriteFile(filepath.Join(dir, "people.schema.yaml"), []byte(schemaYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	job := `{"job":"j","schema_file":"people.schema.yaml","source":{"kind":"ids"}}`
	path := filepath.Join(dir, "job.json")
	if err := os.WriteFile(path, []byte(job), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := p.Schema.ColumnNames(); len(got) != 2 || got[0] != "id" || got[1] != "tags" {
		t.Fatalf("schema columns = %v", got)
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("Load(missing) error = nil")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvStorage: "postgres",
		EnvDSN:     "postgres://localhost/db",
		EnvTarget:  "ds.other",
		EnvWorkers: "8",
	}
	p := Pipeline{Storage: Storage{Kind: "sqlite", DSN: "file:x.db"}, Sink: Sink{Target: "ds.people"}}
	if err := ApplyEnv(&p, func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if p.Storage.Kind != "postgres" || p.Storage.DSN != "postgres://localhost/db" || p.Sink.Target != "ds.other" || p.Runtime.Workers != 8 {
		t.Fatalf("ApplyEnv() = %+v", p)
	}

	unchanged := Pipeline{Sink: Sink{Target: "ds.people"}}
	_ = ApplyEnv(&unchanged, func(string) string { return "" })
	if unchanged.Sink.Target != "ds.people" {
		t.Fatalf("empty env overrode target")
	}

	env[EnvWorkers] = "many"
	if err := ApplyEnv(&p, func(k string) string { return env[k] }); err == nil {
		t.Fatalf("ApplyEnv(bad workers) error = nil")
	}
}

func TestOptions_Getters(t *testing.T) {
	t.Parallel()

	o := Options{
		"s":    "x",
		"b":    true,
		"f":    float64(3),
		"i":    7,
		"u":    uint64(9),
		"list": []any{"a", 1, "b"},
		"strs": []string{"c"},
	}
	if o.String("s", "d") != "x" || o.String("b", "d") != "d" || o.String("none", "d") != "d" {
		t.Fatalf("String() getters wrong")
	}
	if !o.Bool("b", false) || o.Bool("s", false) {
		t.Fatalf("Bool() getters wrong")
	}
	if o.Int("f", 0) != 3 || o.Int("i", 0) != 7 || o.Int("u", 0) != 9 || o.Int("s", -1) != -1 {
		t.Fatalf("Int() getters wrong")
	}
	if got := o.StringSlice("list"); len(got) != 2 || got[1] != "b" {
		t.Fatalf("StringSlice(list) = %v", got)
	}
	if got := o.StringSlice("strs"); len(got) != 1 {
		t.Fatalf("StringSlice(strs) = %v", got)
	}
	if o.StringSlice("s") != nil {
		t.Fatalf("StringSlice(non-array) != nil")
	}
	m := o.Map()
	m["s"] = "changed"
	if o.String("s", "") != "x" {
		t.Fatalf("Map() aliases Options")
	}
	if (Options(nil)).Map() == nil {
		t.Fatalf("nil Options Map() = nil")
	}
}

func TestOptions_UnmarshalJSON_NullYieldsEmptyMap(t *testing.T) {
	t.Parallel()

	var w struct {
		Opts Options `json:"options"`
	}
	if err := json.Unmarshal([]byte(`{"options": null}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Opts == nil || len(w.Opts) != 0 {
		t.Fatalf("Opts after null unmarshal = %#v, want non-nil empty map", w.Opts)
	}
}
