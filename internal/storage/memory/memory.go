// Package memory implements an in-process storage.Store. It backs tests and
// dry runs; nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/storage"
)

type table struct {
	schema schema.Schema
	rows   []record.Record
}

// Store keeps tables in a map guarded by a mutex. Commit builds the new row
// slice first and swaps it in under the lock, so readers never see a partial
// batch.
type Store struct {
	mu     sync.RWMutex
	tables map[storage.Table]*table
}

// New returns an empty store.
func New() *Store {
	return &Store{tables: make(map[storage.Table]*table)}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Describe(ctx context.Context, t storage.Table) (storage.TableInfo, error) {
	if err := ctx.Err(); err != nil {
		return storage.TableInfo{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tb, ok := s.tables[t]
	if !ok {
		return storage.TableInfo{}, nil
	}
	return storage.TableInfo{Exists: true, Schema: tb.schema, Rows: int64(len(tb.rows))}, nil
}

func (s *Store) Create(ctx context.Context, t storage.Table, sch schema.Schema) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sch.IsZero() {
		return fmt.Errorf("memory: create %s: schema has no fields", t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[t]; ok {
		return fmt.Errorf("memory: create %s: table already exists", t)
	}
	s.tables[t] = &table{schema: sch}
	return nil
}

func (s *Store) Commit(ctx context.Context, t storage.Table, sch schema.Schema, recs []record.Record, mode storage.Mode) (int64, error) {
	if err := storage.CheckRequired(sch, recs); err != nil {
		return 0, fmt.Errorf("memory: %s: %w", t, err)
	}
	batch := make([]record.Record, len(recs))
	for i, r := range recs {
		batch[i] = r.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tb, ok := s.tables[t]
	if !ok {
		return 0, fmt.Errorf("memory: %s: %w", t, storage.ErrNotFound)
	}

	var next []record.Record
	switch mode {
	case storage.RequireEmpty:
		if len(tb.rows) > 0 {
			return 0, fmt.Errorf("memory: %s has %d rows: %w", t, len(tb.rows), storage.ErrNotEmpty)
		}
		next = batch
	case storage.Truncate:
		next = batch
	default:
		next = make([]record.Record, 0, len(tb.rows)+len(batch))
		next = append(append(next, tb.rows...), batch...)
	}
	tb.rows = next
	return int64(len(batch)), nil
}

// Rows returns a copy of the rows currently in t, in insertion order.
func (s *Store) Rows(t storage.Table) []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tb, ok := s.tables[t]
	if !ok {
		return nil
	}
	out := make([]record.Record, len(tb.rows))
	for i, r := range tb.rows {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) Close() error { return nil }

func init() {
	storage.Register("memory", func(context.Context, storage.Config) (storage.Store, error) {
		return New(), nil
	})
}
