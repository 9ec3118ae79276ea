package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/sink"
	"tableload/internal/storage"
	"tableload/internal/storage/memory"
	"tableload/internal/transformer"
)

const target = "proj:ds.people"

func scenarioSchema(t testing.TB) schema.Schema {
	t.Helper()

	b := schema.NewBuilder()
	b.AddField("kind", schema.TypeString, schema.ModeNullable)
	b.AddField("fullName", schema.TypeString, schema.ModeRequired)
	b.AddField("age", schema.TypeInteger, schema.ModeNullable)
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

func toPerson(id string) (record.Record, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, err
	}
	return record.Record{
		"kind":     record.String("kind" + id),
		"fullName": record.String("fullName" + id),
		"age":      record.Int(int64(n) * 10),
		"phoneNumber": record.Nested(record.Record{
			"areaCode": record.Int(int64(n) * 100),
			"number":   record.Int(int64(n) * 100000),
		}),
		"children": record.Strings("child"+id+"1", "child"+id+"2", "child"+id+"3"),
	}, nil
}

// countingStore counts commits on top of a memory store.
type countingStore struct {
	*memory.Store
	commits atomic.Int32
}

func (c *countingStore) Commit(ctx context.Context, t storage.Table, s schema.Schema, recs []record.Record, m storage.Mode) (int64, error) {
	c.commits.Add(1)
	return c.Store.Commit(ctx, t, s, recs, m)
}

func newStore() *countingStore { return &countingStore{Store: memory.New()} }

func peopleTable() storage.Table { return storage.Table{Project: "proj", Dataset: "ds", Name: "people"} }

func buildGraph(t *testing.T, st storage.Store, ids []string, d sink.Disposition, opts ...sink.WriterOption) *Graph[string] {
	t.Helper()

	g := New[string]("people", WithWorkers(2))
	if err := g.AddSource("ids", FromSlice(ids)); err != nil {
		t.Fatal(err)
	}
	if err := g.AddTransform("toPerson", toPerson); err != nil {
		t.Fatal(err)
	}
	if err := g.AddSink("table", SinkSpec{
		Target:      target,
		Schema:      scenarioSchema(t),
		Disposition: d,
		Writer:      sink.NewWriter(st, opts...),
	}); err != nil {
		t.Fatal(err)
	}
	if err := g.Build(); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func TestRun_PeopleScenario(t *testing.T) {
	t.Parallel()

	st := newStore()
	g := buildGraph(t, st, []string{"1", "2", "3"}, sink.DefaultDisposition(), sink.WithStrict(true))
	if g.State() != Built {
		t.Fatalf("State() = %s, want built", g.State())
	}

	res, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if g.State() != Completed {
		t.Fatalf("State() = %s, want completed", g.State())
	}
	if res.Records != 3 || res.Write.RowsWritten != 3 || !res.Write.Created || res.RunID == "" {
		t.Fatalf("RunResult = %+v", res)
	}

	rows := st.Rows(peopleTable())
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	r := rows[1]
	if age, _ := r["age"].IntValue(); age != 20 {
		t.Fatalf("age = %d, want 20", age)
	}
	phone, _ := r["phoneNumber"].Record()
	if !phone.Equal(record.Record{"areaCode": record.Int(200), "number": record.Int(200000)}) {
		t.Fatalf("phoneNumber = %v", phone.Native())
	}
	if r["children"].Len() != 3 {
		t.Fatalf("children = %v", r["children"])
	}
}

func TestRun_SecondRunRejectedWithoutWrite(t *testing.T) {
	t.Parallel()

	st := newStore()
	g := buildGraph(t, st, []string{"1", "2"}, sink.DefaultDisposition())
	if _, err := g.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := g.Run(context.Background())
	var aee *AlreadyExecutedError
	if !errors.As(err, &aee) || aee.State != Completed {
		t.Fatalf("second Run() error = %v, want *AlreadyExecutedError(completed)", err)
	}
	if n := st.commits.Load(); n != 1 {
		t.Fatalf("commits = %d, want 1", n)
	}
	if n := len(st.Rows(peopleTable())); n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}

func TestRun_FailedGraphIsTerminal(t *testing.T) {
	t.Parallel()

	st := newStore()
	g := buildGraph(t, st, []string{"1", "x"}, sink.DefaultDisposition())
	_, err := g.Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage.Kind != TransformStage {
		t.Fatalf("Run() error = %v, want transform *StageError", err)
	}
	var ie *transformer.ItemError
	if !errors.As(err, &ie) || ie.Index != 1 {
		t.Fatalf("Run() error = %v, want *transformer.ItemError at index 1", err)
	}
	if g.State() != Failed {
		t.Fatalf("State() = %s, want failed", g.State())
	}
	var aee *AlreadyExecutedError
	if _, err := g.Run(context.Background()); !errors.As(err, &aee) || aee.State != Failed {
		t.Fatalf("Run() on failed graph error = %v", err)
	}
	if st.commits.Load() != 0 {
		t.Fatalf("commit issued after transform failure")
	}
}

func TestRun_DeterministicBatches(t *testing.T) {
	t.Parallel()

	ids := make([]string, 500)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	var sums []uint64
	for i := 0; i < 2; i++ {
		g := buildGraph(t, newStore(), ids, sink.DefaultDisposition())
		res, err := g.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		sums = append(sums, res.Write.Checksum)
	}
	if sums[0] != sums[1] {
		t.Fatalf("checksums differ: %x != %x", sums[0], sums[1])
	}
}

func TestRun_TruncateRetryIsIdempotent(t *testing.T) {
	t.Parallel()

	st := newStore()
	d := sink.Disposition{Create: sink.CreateIfNeeded, Write: sink.WriteTruncate}
	for i := 0; i < 2; i++ {
		if _, err := buildGraph(t, st, []string{"1", "2", "3"}, d).Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if n := len(st.Rows(peopleTable())); n != 3 {
		t.Fatalf("rows after two truncate runs = %d, want 3", n)
	}
}

func TestRun_SinkPreconditions(t *testing.T) {
	t.Parallel()

	t.Run("write empty on populated table", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		if _, err := buildGraph(t, st, []string{"1"}, sink.DefaultDisposition()).Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		g := buildGraph(t, st, []string{"2"}, sink.Disposition{Write: sink.WriteEmpty})
		_, err := g.Run(context.Background())
		var tne *sink.TargetNotEmptyError
		if !errors.As(err, &tne) {
			t.Fatalf("Run() error = %v, want *sink.TargetNotEmptyError", err)
		}
		if g.State() != Failed {
			t.Fatalf("State() = %s, want failed", g.State())
		}
	})

	t.Run("create never on missing table", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		_, err := buildGraph(t, st, []string{"1"}, sink.Disposition{Create: sink.CreateNever}).Run(context.Background())
		var tme *sink.TargetMissingError
		if !errors.As(err, &tme) {
			t.Fatalf("Run() error = %v, want *sink.TargetMissingError", err)
		}
		if st.commits.Load() != 0 {
			t.Fatalf("commit issued for missing target")
		}
	})

	t.Run("strict rejects missing required field", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		g := New[string]("strict")
		_ = g.AddSource("ids", FromSlice([]string{"1", "2"}))
		_ = g.AddTransform("toPerson", func(id string) (record.Record, error) {
			r, err := toPerson(id)
			if id == "2" {
				delete(r, "fullName")
			}
			return r, err
		})
		_ = g.AddSink("table", SinkSpec{Target: target, Schema: scenarioSchema(t), Writer: sink.NewWriter(st, sink.WithStrict(true))})
		if err := g.Build(); err != nil {
			t.Fatal(err)
		}
		_, err := g.Run(context.Background())
		var ve *record.ValidationError
		if !errors.As(err, &ve) || ve.Index != 1 || ve.Path != "fullName" {
			t.Fatalf("Run() error = %v, want *record.ValidationError at 1/fullName", err)
		}
		if info, _ := st.Describe(context.Background(), peopleTable()); info.Exists {
			t.Fatalf("strict failure created the target")
		}
	})
}

func TestRun_CancelledBeforeWrite(t *testing.T) {
	t.Parallel()

	st := newStore()
	ctx, cancel := context.WithCancel(context.Background())

	g := New[string]("cancel")
	_ = g.AddSource("ids", FromFunc(func(ctx context.Context, emit func(string) error) error {
		for _, id := range []string{"1", "2", "3"} {
			if err := emit(id); err != nil {
				return err
			}
		}
		cancel()
		return nil
	}))
	_ = g.AddTransform("toPerson", toPerson)
	_ = g.AddSink("table", SinkSpec{Target: target, Schema: scenarioSchema(t), Writer: sink.NewWriter(st)})
	if err := g.Build(); err != nil {
		t.Fatal(err)
	}

	_, err := g.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if st.commits.Load() != 0 {
		t.Fatalf("commit issued after cancellation")
	}
	if info, _ := st.Describe(context.Background(), peopleTable()); info.Exists {
		t.Fatalf("target created after cancellation")
	}
}

func TestBuild_ReportsEveryMissingSlot(t *testing.T) {
	t.Parallel()

	g := New[string]("empty")
	err := g.Build()
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("Build() error = %v, want *ConfigError", err)
	}
	for _, k := range []string{"source", "transform", "sink"} {
		if !strings.Contains(ce.Reason, k) {
			t.Fatalf("Build() reason %q does not name %s", ce.Reason, k)
		}
	}
	if g.State() != Building {
		t.Fatalf("State() = %s, want building", g.State())
	}

	_ = g.AddSource("ids", FromSlice([]string{"1"}))
	err = g.Build()
	if !errors.As(err, &ce) || strings.Contains(ce.Reason, "source") {
		t.Fatalf("Build() after AddSource error = %v", err)
	}
}

func TestAddStage_Misuse(t *testing.T) {
	t.Parallel()

	st := newStore()
	s := scenarioSchema(t)
	w := sink.NewWriter(st)

	tests := []struct {
		name string
		do   func(g *Graph[string]) error
	}{
		{name: "duplicate source", do: func(g *Graph[string]) error {
			_ = g.AddSource("a", FromSlice([]string{"1"}))
			return g.AddSource("b", FromSlice([]string{"2"}))
		}},
		{name: "duplicate stage name", do: func(g *Graph[string]) error {
			_ = g.AddSource("a", FromSlice([]string{"1"}))
			return g.AddTransform("a", toPerson)
		}},
		{name: "empty name", do: func(g *Graph[string]) error {
			return g.AddTransform(" ", toPerson)
		}},
		{name: "nil source", do: func(g *Graph[string]) error {
			return g.AddSource("a", nil)
		}},
		{name: "nil transform", do: func(g *Graph[string]) error {
			return g.AddTransform("a", nil)
		}},
		{name: "nil writer", do: func(g *Graph[string]) error {
			return g.AddSink("a", SinkSpec{Target: target, Schema: s})
		}},
		{name: "empty schema", do: func(g *Graph[string]) error {
			return g.AddSink("a", SinkSpec{Target: target, Writer: w})
		}},
		{name: "add after build", do: func(g *Graph[string]) error {
			_ = g.AddSource("ids", FromSlice([]string{"1"}))
			_ = g.AddTransform("toPerson", toPerson)
			_ = g.AddSink("table", SinkSpec{Target: target, Schema: s, Writer: w})
			if err := g.Build(); err != nil {
				return fmt.Errorf("unexpected: %w", err)
			}
			return g.AddTransform("again", toPerson)
		}},
		{name: "run before build", do: func(g *Graph[string]) error {
			_, err := g.Run(context.Background())
			return err
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.do(New[string]("misuse"))
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *ConfigError", err)
			}
		})
	}
}

func TestAddSink_InvalidTargetIsSynchronous(t *testing.T) {
	t.Parallel()

	g := New[string]("bad-target")
	err := g.AddSink("table", SinkSpec{Target: "not a table", Schema: scenarioSchema(t), Writer: sink.NewWriter(newStore())})
	var ite *sink.InvalidTargetError
	if !errors.As(err, &ite) {
		t.Fatalf("AddSink() error = %v, want *sink.InvalidTargetError", err)
	}
	if len(g.Stages()) != 0 {
		t.Fatalf("Stages() = %v, want none", g.Stages())
	}
}

func TestAddSink_AfterBuildIsConfigError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
	}{
		{name: "valid target", target: target},
		{name: "invalid target", target: "not a table"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := newStore()
			g := buildGraph(t, st, []string{"1"}, sink.DefaultDisposition())
			err := g.AddSink("again", SinkSpec{Target: tt.target, Schema: scenarioSchema(t), Writer: sink.NewWriter(st)})
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("AddSink() error = %v, want *ConfigError", err)
			}
			var ite *sink.InvalidTargetError
			if errors.As(err, &ite) {
				t.Fatalf("AddSink() error = %v, want no *sink.InvalidTargetError", err)
			}
		})
	}
}

func TestStages_Order(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, newStore(), []string{"1"}, sink.DefaultDisposition())
	var got []string
	for _, s := range g.Stages() {
		got = append(got, s.String())
	}
	if want := "source:ids transform:toPerson sink:table"; strings.Join(got, " ") != want {
		t.Fatalf("Stages() = %v, want %s", got, want)
	}
}
