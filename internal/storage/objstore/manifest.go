package objstore

import (
	"github.com/goccy/go-json"

	"tableload/internal/schema"
)

const manifestName = "_manifest.json"

// dataObject is one committed NDJSON batch.
type dataObject struct {
	Key  string `json:"key"`
	Rows int64  `json:"rows"`
}

// manifest is the single source of truth for a table. Data objects not
// listed in it are invisible, so replacing the manifest is the commit point.
type manifest struct {
	Table       string        `json:"table"`
	Schema      schema.Schema `json:"schema"`
	Fingerprint string        `json:"fingerprint"`
	Objects     []dataObject  `json:"objects"`
}

func (m *manifest) rows() int64 {
	var n int64
	for _, o := range m.Objects {
		n += o.Rows
	}
	return n
}

func decodeManifest(b []byte) (*manifest, error) {
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *manifest) encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
