package pipeline

import (
	"context"
	"errors"
)

// Source yields the bounded, ordered input of a run. Items is called once
// per run.
type Source[In any] interface {
	Items(ctx context.Context) ([]In, error)
}

type sliceSource[In any] struct{ items []In }

// FromSlice returns a materialized Source over a copy of items.
func FromSlice[In any](items []In) Source[In] {
	return sliceSource[In]{items: append([]In(nil), items...)}
}

func (s sliceSource[In]) Items(ctx context.Context) ([]In, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]In(nil), s.items...), nil
}

// ProduceFunc emits items in order through emit. A non-nil error from emit
// must be returned unchanged.
type ProduceFunc[In any] func(ctx context.Context, emit func(In) error) error

type funcSource[In any] struct{ produce ProduceFunc[In] }

// FromFunc returns a streamed Source. produce runs lazily on Run, and the
// emitted items are collected in order. Emitting stops with ctx's error once
// ctx is done.
func FromFunc[In any](produce ProduceFunc[In]) Source[In] {
	return funcSource[In]{produce: produce}
}

func (s funcSource[In]) Items(ctx context.Context) ([]In, error) {
	if s.produce == nil {
		return nil, errors.New("pipeline: nil produce func")
	}
	var out []In
	err := s.produce(ctx, func(in In) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out = append(out, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
