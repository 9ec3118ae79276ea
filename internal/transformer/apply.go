package transformer

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"tableload/internal/record"
)

// Options control how Apply spreads work.
type Options struct {
	// Workers is the number of goroutines. <= 0 means GOMAXPROCS.
	Workers int
	// MinPartition is the smallest number of items worth a goroutine of its
	// own. Defaults to 64.
	MinPartition int
}

func (o Options) workers(n int) int {
	w := o.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	minPart := o.MinPartition
	if minPart <= 0 {
		minPart = 64
	}
	if max := (n + minPart - 1) / minPart; w > max {
		w = max
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Apply runs fn over items and returns one record per item in input order.
// The input is split into contiguous partitions, one per worker. The first
// failure cancels the remaining partitions and is returned as *ItemError;
// a panic inside fn is reported the same way.
func Apply[In any](ctx context.Context, items []In, fn Func[In], opts Options) ([]record.Record, error) {
	if fn == nil {
		return nil, errors.New("transformer: nil transform func")
	}
	out := make([]record.Record, len(items))
	if len(items) == 0 {
		return out, ctx.Err()
	}

	workers := opts.workers(len(items))
	size := (len(items) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(items); start += size {
		lo, hi := start, min(start+size, len(items))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := callSafe(fn, items[i])
				if err != nil {
					return &ItemError{Index: i, Err: err}
				}
				out[i] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func callSafe[In any](fn Func[In], in In) (r record.Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(in)
}
