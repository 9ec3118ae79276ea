package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// fieldDoc is the declarative form of a field, shared by the JSON and YAML
// encodings:
//
//	{"fields": [
//	  {"name": "fullName", "type": "STRING", "mode": "REQUIRED"},
//	  {"name": "phoneNumber", "type": "RECORD", "fields": [
//	    {"name": "areaCode", "type": "INTEGER"}
//	  ]}
//	]}
//
// A bare top-level array of fields is accepted as well.
type fieldDoc struct {
	Name   string     `json:"name" yaml:"name"`
	Type   string     `json:"type" yaml:"type"`
	Mode   string     `json:"mode,omitempty" yaml:"mode,omitempty"`
	Fields []fieldDoc `json:"fields,omitempty" yaml:"fields,omitempty"`
}

type schemaDoc struct {
	Fields []fieldDoc `json:"fields" yaml:"fields"`
}

// ParseJSON decodes a declarative JSON schema and validates it.
func ParseJSON(b []byte) (Schema, error) {
	var fields []fieldDoc
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return Schema{}, fmt.Errorf("schema: decode json: %w", err)
		}
	} else {
		var doc schemaDoc
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return Schema{}, fmt.Errorf("schema: decode json: %w", err)
		}
		fields = doc.Fields
	}
	return fromDocs(fields)
}

// ParseYAML decodes a declarative YAML schema and validates it.
func ParseYAML(b []byte) (Schema, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return Schema{}, fmt.Errorf("schema: decode yaml: %w", err)
	}
	var s Schema
	if err := s.UnmarshalYAML(&node); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Load reads a schema file. Files ending in .yaml or .yml are decoded as YAML;
// everything else as JSON.
func Load(path string) (Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("schema: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(b)
	default:
		return ParseJSON(b)
	}
}

func fromDocs(docs []fieldDoc) (Schema, error) {
	b := NewBuilder()
	if err := addDocs("", &b.FieldBuilder, docs); err != nil {
		return Schema{}, err
	}
	return b.Build()
}

func addDocs(parent string, fb *FieldBuilder, docs []fieldDoc) error {
	for _, d := range docs {
		path := joinPath(parent, d.Name)
		typ, err := ParseType(d.Type)
		if err != nil {
			return &Error{Path: path, Reason: err.Error()}
		}
		mode, err := ParseMode(d.Mode)
		if err != nil {
			return &Error{Path: path, Reason: err.Error()}
		}
		h := fb.AddField(d.Name, typ, mode)
		if len(d.Fields) > 0 {
			if err := addDocs(path, h.Nested(), d.Fields); err != nil {
				return err
			}
		}
	}
	return nil
}

func toDocs(fields []FieldDescriptor) []fieldDoc {
	out := make([]fieldDoc, len(fields))
	for i, f := range fields {
		out[i] = fieldDoc{
			Name:   f.Name,
			Type:   f.Type.String(),
			Mode:   f.Mode.String(),
			Fields: toDocs(f.Children),
		}
	}
	return out
}

// MarshalJSON encodes s in the declarative form accepted by ParseJSON.
func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaDoc{Fields: toDocs(s.fields)})
}

// UnmarshalJSON decodes and validates a declarative JSON schema, allowing a
// Schema to be embedded in configuration files.
func (s *Schema) UnmarshalJSON(b []byte) error {
	parsed, err := ParseJSON(b)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML encodes s in the declarative YAML form.
func (s Schema) MarshalYAML() (any, error) {
	return schemaDoc{Fields: toDocs(s.fields)}, nil
}

// UnmarshalYAML decodes and validates a declarative YAML schema. Both a
// mapping with a "fields" key and a bare sequence of fields are accepted.
func (s *Schema) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.DocumentNode && len(value.Content) > 0 {
		value = value.Content[0]
	}
	var fields []fieldDoc
	if value.Kind == yaml.SequenceNode {
		if err := value.Decode(&fields); err != nil {
			return fmt.Errorf("schema: decode yaml: %w", err)
		}
	} else {
		var doc schemaDoc
		if err := value.Decode(&doc); err != nil {
			return fmt.Errorf("schema: decode yaml: %w", err)
		}
		fields = doc.Fields
	}
	parsed, err := fromDocs(fields)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
