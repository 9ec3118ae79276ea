package mssql

import (
	"context"
	"os"
	"testing"

	"tableload/internal/storage"
	"tableload/internal/storage/sqlstore"
	"tableload/internal/storage/storetest"
)

var _ sqlstore.BulkInserter = dialect{}

func TestDialect(t *testing.T) {
	t.Parallel()

	d := dialect{}
	if got := d.TableName(storage.Table{Project: "p-1", Dataset: "ds", Name: "people"}); got != "[p_1__ds].[people]" {
		t.Fatalf("TableName() = %s", got)
	}
	if got := d.Placeholder(2); got != "@p2" {
		t.Fatalf("Placeholder(2) = %s", got)
	}
}

func TestNewRepository_BadDSN(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{DSN: "sqlserver://host?connection+timeout=notanumber"}); err == nil {
		t.Fatalf("NewRepository(bad DSN) error = nil")
	}
}

func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	closed := false
	newRepository = func(ctx context.Context, cfg Config) (*sqlstore.Store, func(), error) {
		gotCfg = cfg
		return &sqlstore.Store{}, func() { closed = true }, nil
	}

	st, err := storage.New(context.Background(), storage.Config{
		Kind:    "mssql",
		DSN:     "sqlserver://sa:pw@localhost:1433?database=tableload",
		Options: storage.Options{"batch_size": 10},
	})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if gotCfg.BatchSize != 10 {
		t.Fatalf("cfg = %+v", gotCfg)
	}
	_ = st.Close()
	if !closed {
		t.Fatalf("Close() did not call cleanup")
	}
}

// TestStoreConformance_Integration runs against a real server when
// TEST_MSSQL_DSN is set.
func TestStoreConformance_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_MSSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MSSQL_DSN not set")
	}
	ctx := context.Background()
	storetest.Run(t, func(t *testing.T) storage.Store {
		st, closeFn, err := NewRepository(ctx, Config{DSN: dsn, BatchSize: 2})
		if err != nil {
			t.Fatalf("NewRepository() error = %v", err)
		}
		t.Cleanup(func() {
			_, _ = st.DB().ExecContext(ctx, "DROP TABLE IF EXISTS [ds].[people]; DROP TABLE IF EXISTS [proj_1__ds].[people]")
			_, _ = st.DB().ExecContext(ctx, "DELETE FROM [tableload_schemas] WHERE [table_ref] LIKE '%ds.people'")
			closeFn()
		})
		return st
	})
}
