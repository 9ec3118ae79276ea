package objstore

import (
	"context"

	"tableload/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

func init() {
	storage.Register("s3", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		c, err := ParseDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		c.Region = cfg.Options.String("region", c.Region)
		c.UseSSL = cfg.Options.Bool("ssl", c.UseSSL)
		c.BatchSize = cfg.Options.Int("batch_size", storage.DefaultBatchSize)
		st, _, err := newRepository(ctx, c)
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}
