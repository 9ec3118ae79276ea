// Package storetest holds a conformance suite for storage.Store
// implementations. Backend tests call Run with a constructor that returns a
// fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/storage"
)

// People returns the nested and repeated schema used by the suite.
func People(t testing.TB) schema.Schema {
	t.Helper()

	b := schema.NewBuilder()
	b.AddField("kind", schema.TypeString, schema.ModeNullable)
	b.AddField("fullName", schema.TypeString, schema.ModeRequired)
	b.AddField("age", schema.TypeInteger, schema.ModeNullable)
	b.AddField("gender", schema.TypeString, schema.ModeNullable)
	phone := b.AddNestedField("phoneNumber", schema.ModeNullable)
	phone.AddField("areaCode", schema.TypeInteger, schema.ModeNullable)
	phone.AddField("number", schema.TypeInteger, schema.ModeNullable)
	b.AddField("children", schema.TypeString, schema.ModeRepeated)
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return s
}

// Person returns the record for id in the People schema.
func Person(id int) record.Record {
	sid := strconv.Itoa(id)
	return record.Record{
		"kind":     record.String("kind" + sid),
		"fullName": record.String("fullName" + sid),
		"age":      record.Int(int64(id) * 10),
		"gender":   record.String("gender" + sid),
		"phoneNumber": record.Nested(record.Record{
			"areaCode": record.Int(int64(id) * 100),
			"number":   record.Int(int64(id) * 100000),
		}),
		"children": record.Strings("child"+sid+"1", "child"+sid+"2", "child"+sid+"3"),
	}
}

// Persons returns records for ids lo..hi inclusive.
func Persons(lo, hi int) []record.Record {
	out := make([]record.Record, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, Person(i))
	}
	return out
}

// Run exercises the storage.Store contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	ctx := context.Background()
	tbl := storage.Table{Project: "proj-1", Dataset: "ds", Name: "people"}

	t.Run("describe_missing", func(t *testing.T) {
		st := newStore(t)
		info, err := st.Describe(ctx, tbl)
		if err != nil {
			t.Fatalf("Describe() error = %v", err)
		}
		if info.Exists {
			t.Fatalf("Describe() on empty store reports Exists")
		}
	})

	t.Run("create_then_describe", func(t *testing.T) {
		st := newStore(t)
		s := People(t)
		if err := st.Create(ctx, tbl, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		info, err := st.Describe(ctx, tbl)
		if err != nil {
			t.Fatalf("Describe() error = %v", err)
		}
		if !info.Exists || info.Rows != 0 {
			t.Fatalf("Describe() = %+v, want existing empty table", info)
		}
		if path, reason, ok := schema.Diff(s, info.Schema); !ok {
			t.Fatalf("stored schema differs at %s: %s", path, reason)
		}
		if err := st.Create(ctx, tbl, s); err == nil {
			t.Fatalf("second Create() error = nil, want already exists")
		}
	})

	t.Run("commit_missing_table", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Commit(ctx, tbl, People(t), Persons(1, 1), storage.Append)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Commit() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("append_accumulates", func(t *testing.T) {
		st := newStore(t)
		s := People(t)
		mustCreate(t, st, tbl, s)
		for i := 0; i < 2; i++ {
			n, err := st.Commit(ctx, tbl, s, Persons(1, 3), storage.Append)
			if err != nil || n != 3 {
				t.Fatalf("Commit(append) #%d = %d, %v; want 3, nil", i, n, err)
			}
		}
		wantRows(t, st, tbl, 6)
	})

	t.Run("truncate_replaces", func(t *testing.T) {
		st := newStore(t)
		s := People(t)
		mustCreate(t, st, tbl, s)
		if _, err := st.Commit(ctx, tbl, s, Persons(1, 5), storage.Append); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 2; i++ {
			n, err := st.Commit(ctx, tbl, s, Persons(1, 3), storage.Truncate)
			if err != nil || n != 3 {
				t.Fatalf("Commit(truncate) #%d = %d, %v; want 3, nil", i, n, err)
			}
			wantRows(t, st, tbl, 3)
		}
	})

	t.Run("truncate_empty_batch", func(t *testing.T) {
		st := newStore(t)
		s := People(t)
		mustCreate(t, st, tbl, s)
		if _, err := st.Commit(ctx, tbl, s, Persons(1, 2), storage.Append); err != nil {
			t.Fatal(err)
		}
		n, err := st.Commit(ctx, tbl, s, nil, storage.Truncate)
		if err != nil || n != 0 {
			t.Fatalf("Commit(truncate, empty) = %d, %v; want 0, nil", n, err)
		}
		wantRows(t, st, tbl, 0)
	})

	t.Run("require_empty", func(t *testing.T) {
		st := newStore(t)
		s := People(t)
		mustCreate(t, st, tbl, s)
		if n, err := st.Commit(ctx, tbl, s, Persons(1, 2), storage.RequireEmpty); err != nil || n != 2 {
			t.Fatalf("Commit(require_empty) on empty = %d, %v; want 2, nil", n, err)
		}
		_, err := st.Commit(ctx, tbl, s, Persons(3, 4), storage.RequireEmpty)
		if !errors.Is(err, storage.ErrNotEmpty) {
			t.Fatalf("Commit(require_empty) on populated error = %v, want ErrNotEmpty", err)
		}
		wantRows(t, st, tbl, 2)
	})

	t.Run("failed_commit_leaves_table_unchanged", func(t *testing.T) {
		st := newStore(t)
		s := People(t)
		mustCreate(t, st, tbl, s)
		if _, err := st.Commit(ctx, tbl, s, Persons(1, 2), storage.Append); err != nil {
			t.Fatal(err)
		}
		bad := Persons(3, 4)
		delete(bad[1], "fullName") // violates NOT NULL / REQUIRED
		if _, err := st.Commit(ctx, tbl, s, bad, storage.Truncate); err == nil {
			t.Fatalf("Commit() with a REQUIRED field missing error = nil")
		}
		wantRows(t, st, tbl, 2)
	})

	t.Run("tables_are_isolated", func(t *testing.T) {
		st := newStore(t)
		s := People(t)
		other := storage.Table{Dataset: "ds", Name: "people"}
		mustCreate(t, st, tbl, s)
		mustCreate(t, st, other, s)
		if _, err := st.Commit(ctx, tbl, s, Persons(1, 3), storage.Append); err != nil {
			t.Fatal(err)
		}
		wantRows(t, st, other, 0)
	})
}

func mustCreate(t *testing.T, st storage.Store, tbl storage.Table, s schema.Schema) {
	t.Helper()
	if err := st.Create(context.Background(), tbl, s); err != nil {
		t.Fatalf("Create(%s) error = %v", tbl, err)
	}
}

func wantRows(t *testing.T, st storage.Store, tbl storage.Table, want int64) {
	t.Helper()
	info, err := st.Describe(context.Background(), tbl)
	if err != nil {
		t.Fatalf("Describe(%s) error = %v", tbl, err)
	}
	if info.Rows != want {
		t.Fatalf("Describe(%s).Rows = %d, want %d", tbl, info.Rows, want)
	}
}
