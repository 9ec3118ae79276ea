// Package transformer defines the record transform contract: a pure function
// mapping one input item to one structured record, plus optional post-steps
// chained after it.
//
// A Func must be deterministic and free of shared mutable state. Apply may
// invoke it concurrently from several goroutines on disjoint partitions of
// the input.
package transformer

import (
	"fmt"

	"tableload/internal/record"
)

// Func maps one input item to one record. A non-nil error fails the run.
type Func[In any] func(In) (record.Record, error)

// Map adapts an infallible mapping function.
func Map[In any](fn func(In) record.Record) Func[In] {
	return func(in In) (record.Record, error) { return fn(in), nil }
}

// Step post-processes a record produced by a Func.
type Step interface {
	Apply(record.Record) (record.Record, error)
}

// StepFunc adapts a function to the Step interface.
type StepFunc func(record.Record) (record.Record, error)

func (f StepFunc) Apply(r record.Record) (record.Record, error) { return f(r) }

// Chain is an ordered list of steps.
type Chain []Step

// Apply runs every step in order, feeding each the previous output.
func (c Chain) Apply(r record.Record) (record.Record, error) {
	out := r
	for i, s := range c {
		var err error
		if out, err = s.Apply(out); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return out, nil
}

// Then returns a Func that runs fn and then each step in order.
func Then[In any](fn Func[In], steps ...Step) Func[In] {
	chain := Chain(steps)
	return func(in In) (record.Record, error) {
		r, err := fn(in)
		if err != nil {
			return nil, err
		}
		return chain.Apply(r)
	}
}

// ItemError wraps a transform failure with the position of the input item.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("transform item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
