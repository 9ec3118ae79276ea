// Package config defines the serializable configuration of a tableload job:
// where the input comes from, the schema, the target table and disposition,
// and the storage backend. Files are JSON or YAML; selected fields can be
// overridden from the environment.
//
// Example (trimmed):
//
//	{
//	  "job":     "people",
//	  "source":  { "kind": "ids", "ids": ["1", "2", "3"] },
//	  "schema":  { "fields": [ { "name": "fullName", "type": "STRING", "mode": "REQUIRED" } ] },
//	  "transform": [ { "kind": "normalize" } ],
//	  "sink":    { "target": "ds.people", "create": "CREATE_IF_NEEDED", "write": "WRITE_TRUNCATE" },
//	  "storage": { "kind": "sqlite", "dsn": "file:people.db" }
//	}
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"tableload/internal/schema"
)

// Pipeline is the top-level object decoded from a job file.
type Pipeline struct {
	// Job labels logs and metrics.
	Job string `json:"job" yaml:"job"`

	Source Source `json:"source" yaml:"source"`

	// Schema is the inline table schema. SchemaFile, when set, is loaded
	// instead.
	Schema     schema.Schema `json:"schema" yaml:"schema"`
	SchemaFile string        `json:"schema_file,omitempty" yaml:"schema_file,omitempty"`

	// Transform lists post-steps applied to every record, in order.
	Transform []Transform `json:"transform" yaml:"transform"`

	Sink    Sink          `json:"sink" yaml:"sink"`
	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Metrics Metrics       `json:"metrics" yaml:"metrics"`
}

// Source selects the input items.
type Source struct {
	// Kind is "ids" (identifiers for the people workflow, inline or one per
	// line in Path) or "ndjson" (one JSON object per line, loaded as a
	// record). Path may be a local file or an http(s) URL.
	Kind string   `json:"kind" yaml:"kind"`
	IDs  []string `json:"ids,omitempty" yaml:"ids,omitempty"`
	Path string   `json:"path,omitempty" yaml:"path,omitempty"`
}

// Transform is one post-step with a free-form options bag.
type Transform struct {
	// Kind is "normalize" or "require".
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Sink configures the target table and disposition.
type Sink struct {
	Target string `json:"target" yaml:"target"`
	Create string `json:"create" yaml:"create"`
	Write  string `json:"write" yaml:"write"`
	Strict bool   `json:"strict" yaml:"strict"`
	// Timeout is a Go duration string such as "30s". Empty means the writer
	// default.
	Timeout string `json:"timeout" yaml:"timeout"`
}

// TimeoutDuration parses Timeout. It returns def when Timeout is empty.
func (s Sink) TimeoutDuration(def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s.Timeout) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("sink.timeout: %w", err)
	}
	return d, nil
}

// Storage selects the backend the sink commits through.
type Storage struct {
	Kind    string  `json:"kind" yaml:"kind"`
	DSN     string  `json:"dsn" yaml:"dsn"`
	Options Options `json:"options" yaml:"options"`
}

// RuntimeConfig controls transform parallelism.
type RuntimeConfig struct {
	Workers      int `json:"workers" yaml:"workers"`
	MinPartition int `json:"min_partition" yaml:"min_partition"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string `json:"backend" yaml:"backend"`
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`
	StatsdAddr     string `json:"statsd_addr" yaml:"statsd_addr"`
}

// Decode parses a job file body. YAML is chosen for .yaml and .yml names,
// JSON otherwise.
func Decode(name string, b []byte) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return Pipeline{}, fmt.Errorf("config: %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(b, &p); err != nil {
			return Pipeline{}, fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return p, nil
}

// Load reads and decodes the job file at path. A relative schema_file is
// resolved against the job file's directory.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: %w", err)
	}
	p, err := Decode(path, b)
	if err != nil {
		return Pipeline{}, err
	}
	if p.SchemaFile != "" {
		sf := p.SchemaFile
		if !filepath.IsAbs(sf) {
			sf = filepath.Join(filepath.Dir(path), sf)
		}
		if p.Schema, err = schema.Load(sf); err != nil {
			return Pipeline{}, fmt.Errorf("config: schema_file: %w", err)
		}
	}
	return p, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvStorage = "TABLELOAD_STORAGE"
	EnvDSN     = "TABLELOAD_DSN"
	EnvTarget  = "TABLELOAD_TARGET"
	EnvWorkers = "TABLELOAD_WORKERS"
)

// ApplyEnv overrides fields from the environment. getenv is usually
// os.Getenv. Empty variables are ignored.
func ApplyEnv(p *Pipeline, getenv func(string) string) error {
	if v := getenv(EnvStorage); v != "" {
		p.Storage.Kind = v
	}
	if v := getenv(EnvDSN); v != "" {
		p.Storage.DSN = v
	}
	if v := getenv(EnvTarget); v != "" {
		p.Sink.Target = v
	}
	if v := getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvWorkers, v, err)
		}
		p.Runtime.Workers = n
	}
	return nil
}

// Options fetches typed values from free-form option maps. Missing keys and
// values of an unexpected type yield the default.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64
// and YAML integers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case uint64:
			return int(n)
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. Non-string elements are skipped. Returns nil when the key is
// missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Map returns o as a plain map, never nil.
func (o Options) Map() map[string]any {
	out := make(map[string]any, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// UnmarshalJSON decodes an explicit null as an empty, non-nil Options.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
