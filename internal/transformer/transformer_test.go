package transformer

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"tableload/internal/record"
	"tableload/internal/transformer/builtin"
)

func idRecord(id int) record.Record {
	return record.Record{"id": record.Int(int64(id)), "name": record.String(" n" + strconv.Itoa(id) + " ")}
}

func TestApply_PreservesInputOrder(t *testing.T) {
	t.Parallel()

	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}
	for _, workers := range []int{1, 3, 8, 64} {
		workers := workers
		t.Run(strconv.Itoa(workers), func(t *testing.T) {
			t.Parallel()

			out, err := Apply(context.Background(), items, Map(idRecord), Options{Workers: workers, MinPartition: 1})
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if len(out) != len(items) {
				t.Fatalf("Apply() len = %d, want %d", len(out), len(items))
			}
			for i, r := range out {
				if got, _ := r["id"].IntValue(); got != int64(i) {
					t.Fatalf("out[%d].id = %d, want %d", i, got, i)
				}
			}
		})
	}
}

func TestApply_Empty(t *testing.T) {
	t.Parallel()

	out, err := Apply(context.Background(), nil, Map(idRecord), Options{})
	if err != nil || len(out) != 0 {
		t.Fatalf("Apply(nil) = %v, %v; want empty, nil", out, err)
	}
}

func TestApply_ErrorCarriesIndex(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fn := func(i int) (record.Record, error) {
		if i == 7 {
			return nil, boom
		}
		return idRecord(i), nil
	}
	_, err := Apply(context.Background(), []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, fn, Options{Workers: 1})
	var ie *ItemError
	if !errors.As(err, &ie) || ie.Index != 7 {
		t.Fatalf("Apply() error = %v, want *ItemError at index 7", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Apply() error does not wrap the transform error")
	}
}

func TestApply_PanicBecomesError(t *testing.T) {
	t.Parallel()

	fn := func(i int) (record.Record, error) {
		if i == 2 {
			panic("bad input")
		}
		return idRecord(i), nil
	}
	_, err := Apply(context.Background(), []int{0, 1, 2}, fn, Options{Workers: 1})
	var ie *ItemError
	if !errors.As(err, &ie) || ie.Index != 2 {
		t.Fatalf("Apply() error = %v, want *ItemError at index 2", err)
	}
}

func TestApply_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	fn := func(i int) (record.Record, error) {
		calls.Add(1)
		return idRecord(i), nil
	}
	_, err := Apply(ctx, []int{1, 2, 3}, fn, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Apply() error = %v, want context.Canceled", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("transform called %d times after cancel, want 0", calls.Load())
	}
}

func TestApply_NilFunc(t *testing.T) {
	t.Parallel()

	if _, err := Apply[int](context.Background(), []int{1}, nil, Options{}); err == nil {
		t.Fatalf("Apply(nil func) error = nil")
	}
}

func TestThen_RunsStepsInOrder(t *testing.T) {
	t.Parallel()

	tag := StepFunc(func(r record.Record) (record.Record, error) {
		out := r.Clone()
		n, _ := out["name"].StringValue()
		out["name"] = record.String(n + "!")
		return out, nil
	})
	fn := Then(Map(idRecord), builtin.Normalize{}, tag, builtin.Require{Fields: []string{"id"}})

	r, err := fn(4)
	if err != nil {
		t.Fatalf("fn() error = %v", err)
	}
	if got, _ := r["name"].StringValue(); got != "n4!" {
		t.Fatalf("name = %q, want %q", got, "n4!")
	}
}

func TestChain_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	var after atomic.Bool
	c := Chain{
		builtin.Require{Fields: []string{"missing"}},
		StepFunc(func(r record.Record) (record.Record, error) { after.Store(true); return r, nil }),
	}
	_, err := c.Apply(record.Record{})
	var mf *builtin.MissingFieldError
	if !errors.As(err, &mf) {
		t.Fatalf("Chain.Apply() error = %v, want *builtin.MissingFieldError", err)
	}
	if after.Load() {
		t.Fatalf("step after failure ran")
	}
}

func BenchmarkApply(b *testing.B) {
	items := make([]int, 10000)
	for i := range items {
		items[i] = i
	}
	fn := Then(Map(idRecord), builtin.Normalize{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Apply(context.Background(), items, fn, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
