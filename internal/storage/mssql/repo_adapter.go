package mssql

import (
	"context"

	"tableload/internal/storage"
	"tableload/internal/storage/sqlstore"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo adds a Close that runs the cleanup returned by NewRepository.
type wrappedRepo struct {
	*sqlstore.Store
	closeFn func()
}

var _ storage.Store = (*wrappedRepo)(nil)

// Close implements storage.Store.Close.
func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:       cfg.DSN,
			BatchSize: cfg.Options.Int("batch_size", storage.DefaultBatchSize),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Store: r, closeFn: closeFn}, nil
	})
}
