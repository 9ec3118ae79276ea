package mongodb

import (
	"context"

	"tableload/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = func(ctx context.Context, cfg Config) (storage.Store, func(), error) {
	return NewRepository(ctx, cfg)
}

type wrappedRepo struct {
	storage.Store
	closeFn func()
}

// Close runs the cleanup returned by NewRepository.
func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

func init() {
	storage.Register("mongodb", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		r, closeFn, err := newRepository(ctx, Config{
			URI:       cfg.DSN,
			Database:  cfg.Options.String("database", DefaultDatabase),
			BatchSize: cfg.Options.Int("batch_size", storage.DefaultBatchSize),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Store: r, closeFn: closeFn}, nil
	})
}
