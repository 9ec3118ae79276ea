// Package storage contains the storage-agnostic table contract that the sink
// writer commits through, plus the backend factory and shared helpers for
// turning records into column rows.
//
// Backends live in subpackages and register themselves by kind at init time;
// import internal/storage/all to link every backend.
package storage

import (
	"context"
	"errors"
	"fmt"

	"tableload/internal/record"
	"tableload/internal/schema"
)

var (
	// ErrNotFound reports that a table does not exist.
	ErrNotFound = errors.New("table not found")
	// ErrNotEmpty reports that a RequireEmpty commit found existing rows.
	ErrNotEmpty = errors.New("table is not empty")
)

// Table identifies a destination table independent of backend naming.
type Table struct {
	Project string
	Dataset string
	Name    string
}

func (t Table) String() string {
	if t.Project == "" {
		return t.Dataset + "." + t.Name
	}
	return t.Project + ":" + t.Dataset + "." + t.Name
}

// TableInfo describes the current state of a table. Schema and Rows are only
// meaningful when Exists is true.
type TableInfo struct {
	Exists bool
	Schema schema.Schema
	Rows   int64
}

// Mode selects how Commit treats rows already in the table.
type Mode int

const (
	// Append adds rows after existing ones.
	Append Mode = iota
	// Truncate removes existing rows and inserts the batch as one unit.
	Truncate
	// RequireEmpty inserts only if the table has no rows; otherwise Commit
	// fails with ErrNotEmpty and writes nothing.
	RequireEmpty
)

func (m Mode) String() string {
	switch m {
	case Append:
		return "append"
	case Truncate:
		return "truncate"
	case RequireEmpty:
		return "require_empty"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Store is implemented by every backend.
//
// Commit must be atomic: either every record becomes visible (after the
// truncate, if requested) or none does. A failed Commit leaves the table as
// it was.
type Store interface {
	// Describe reports whether t exists, its recorded schema and row count.
	Describe(ctx context.Context, t Table) (TableInfo, error)
	// Create creates t with schema s. Creating an existing table is an error.
	Create(ctx context.Context, t Table, s schema.Schema) error
	// Commit writes recs to an existing table and returns the number of rows
	// written. A missing table yields ErrNotFound.
	Commit(ctx context.Context, t Table, s schema.Schema, recs []record.Record, mode Mode) (int64, error)
	// Close releases connections.
	Close() error
}
