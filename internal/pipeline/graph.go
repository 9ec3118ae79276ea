// Package pipeline builds and runs a linear source → transform → sink graph.
//
// A Graph is assembled without side effects, checked by Build and executed
// exactly once by Run:
//
//	g := pipeline.New[string]("people")
//	_ = g.AddSource("ids", pipeline.FromSlice(ids))
//	_ = g.AddTransform("toPerson", toPerson)
//	_ = g.AddSink("table", pipeline.SinkSpec{Target: "ds.people", Schema: s, Writer: w})
//	if err := g.Build(); err != nil { ... }
//	res, err := g.Run(ctx)
//
// All items flow through the transform and are handed to the sink writer as
// one batch. The sink is the only stage with external side effects.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tableload/internal/metrics"
	"tableload/internal/record"
	"tableload/internal/schema"
	"tableload/internal/sink"
	"tableload/internal/transformer"
)

// SinkSpec binds the sink stage. Target is parsed when the stage is added.
// A zero Disposition means {CREATE_IF_NEEDED, WRITE_APPEND}.
type SinkSpec struct {
	Target      string
	Schema      schema.Schema
	Disposition sink.Disposition
	Writer      *sink.Writer
}

type boundSink struct {
	target      sink.TableRef
	schema      schema.Schema
	disposition sink.Disposition
	writer      *sink.Writer
}

// settings are the type-independent graph options.
type settings struct {
	transform transformer.Options
	verbose   bool
}

// GraphOption configures a Graph.
type GraphOption func(*settings)

// WithWorkers sets the number of transform workers. <= 0 means GOMAXPROCS.
func WithWorkers(n int) GraphOption {
	return func(s *settings) { s.transform.Workers = n }
}

// WithTransformOptions replaces the transform partitioning options.
func WithTransformOptions(o transformer.Options) GraphOption {
	return func(s *settings) { s.transform = o }
}

// WithVerbose logs every stage boundary, not only run start and finish.
func WithVerbose(v bool) GraphOption {
	return func(s *settings) { s.verbose = v }
}

// Graph is a single-use pipeline over input items of type In. Its methods
// are safe for concurrent use; at most one Run executes.
type Graph[In any] struct {
	name string
	set  settings

	mu        sync.Mutex
	state     State
	stages    []Stage
	source    Source[In]
	transform transformer.Func[In]
	sink      *boundSink
}

// New returns an empty graph in the building state. name labels logs and
// metrics.
func New[In any](name string, opts ...GraphOption) *Graph[In] {
	g := &Graph[In]{name: name}
	for _, o := range opts {
		o(&g.set)
	}
	return g
}

// Name returns the graph name.
func (g *Graph[In]) Name() string { return g.name }

// State returns the current lifecycle state.
func (g *Graph[In]) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Stages returns the bound stages in the order they were added.
func (g *Graph[In]) Stages() []Stage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Stage(nil), g.stages...)
}

func (g *Graph[In]) configErr(op, format string, args ...any) error {
	return &ConfigError{Graph: g.name, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// add validates and records a stage. Callers hold g.mu.
func (g *Graph[In]) add(kind StageKind, name string, bound bool) error {
	op := "add " + kind.String()
	if g.state != Building {
		return g.configErr(op, "graph is %s; stages can only be added while building", g.state)
	}
	if strings.TrimSpace(name) == "" {
		return g.configErr(op, "stage name is empty")
	}
	if bound {
		return g.configErr(op, "%s stage already set", kind)
	}
	for _, s := range g.stages {
		if s.Name == name {
			return g.configErr(op, "duplicate stage name %q", name)
		}
	}
	g.stages = append(g.stages, Stage{Kind: kind, Name: name})
	return nil
}

// AddSource binds the source stage.
func (g *Graph[In]) AddSource(name string, src Source[In]) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if src == nil {
		return g.configErr("add source", "nil source")
	}
	if err := g.add(SourceStage, name, g.source != nil); err != nil {
		return err
	}
	g.source = src
	return nil
}

// AddTransform binds the transform stage. fn must be deterministic and safe
// to call concurrently.
func (g *Graph[In]) AddTransform(name string, fn transformer.Func[In]) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if fn == nil {
		return g.configErr("add transform", "nil transform func")
	}
	if err := g.add(TransformStage, name, g.transform != nil); err != nil {
		return err
	}
	g.transform = fn
	return nil
}

// AddSink binds the sink stage. A malformed target fails here with
// *sink.InvalidTargetError, before any run. Once the graph has left the
// building state every call fails with *ConfigError, whatever the target.
func (g *Graph[In]) AddSink(name string, spec SinkSpec) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Building {
		return g.configErr("add sink", "graph is %s; stages can only be added while building", g.state)
	}
	ref, err := sink.ParseTableRef(spec.Target)
	if err != nil {
		return err
	}
	if spec.Writer == nil {
		return g.configErr("add sink", "nil writer")
	}
	if spec.Schema.IsZero() {
		return g.configErr("add sink", "schema has no fields")
	}
	if err := g.add(SinkStage, name, g.sink != nil); err != nil {
		return err
	}
	g.sink = &boundSink{target: ref, schema: spec.Schema, disposition: spec.Disposition, writer: spec.Writer}
	return nil
}

// Build checks that every stage slot is filled and moves the graph to
// built. The error names every missing slot.
func (g *Graph[In]) Build() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Building {
		return g.configErr("build", "graph is %s", g.state)
	}
	var miss []StageKind
	if g.source == nil {
		miss = append(miss, SourceStage)
	}
	if g.transform == nil {
		miss = append(miss, TransformStage)
	}
	if g.sink == nil {
		miss = append(miss, SinkStage)
	}
	if len(miss) > 0 {
		return &ConfigError{Graph: g.name, Op: "build", Reason: missing(miss)}
	}
	g.state = Built
	return nil
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID    string
	Records  int
	Write    sink.WriteResult
	Duration time.Duration
}

// Run executes the graph once. A graph still building fails with
// *ConfigError; any later call fails with *AlreadyExecutedError and does no
// work. A stage failure moves the graph to failed and is returned as
// *StageError wrapping the cause. If ctx is done before the sink stage
// starts, no write is issued.
func (g *Graph[In]) Run(ctx context.Context) (RunResult, error) {
	g.mu.Lock()
	switch g.state {
	case Building:
		g.mu.Unlock()
		return RunResult{}, g.configErr("run", "graph is not built; call Build first")
	case Built:
		g.state = Running
	default:
		st := g.state
		g.mu.Unlock()
		return RunResult{}, &AlreadyExecutedError{Graph: g.name, State: st}
	}
	src, fn, sk, stages := g.source, g.transform, g.sink, append([]Stage(nil), g.stages...)
	g.mu.Unlock()

	start := time.Now()
	res := RunResult{RunID: uuid.NewString()}
	log.Printf("pipeline: start graph=%s run=%s target=%s disposition=%s", g.name, res.RunID, sk.target, sk.disposition)

	err := g.execute(ctx, &res, stageOf(stages, SourceStage), stageOf(stages, TransformStage), stageOf(stages, SinkStage), src, fn, sk)
	res.Duration = time.Since(start)

	g.mu.Lock()
	if err != nil {
		g.state = Failed
	} else {
		g.state = Completed
	}
	g.mu.Unlock()

	metrics.RecordStep(g.name, "run", err, res.Duration)
	if err != nil {
		log.Printf("pipeline: failed graph=%s run=%s elapsed=%s err=%v", g.name, res.RunID, res.Duration, err)
		return RunResult{RunID: res.RunID, Duration: res.Duration}, err
	}
	log.Printf("pipeline: done graph=%s run=%s records=%d rows_written=%d elapsed=%s",
		g.name, res.RunID, res.Records, res.Write.RowsWritten, res.Duration)
	return res, nil
}

func stageOf(stages []Stage, k StageKind) Stage {
	for _, s := range stages {
		if s.Kind == k {
			return s
		}
	}
	return Stage{Kind: k}
}

func (g *Graph[In]) execute(
	ctx context.Context,
	res *RunResult,
	srcStage, fnStage, sinkStage Stage,
	src Source[In],
	fn transformer.Func[In],
	sk *boundSink,
) error {
	fail := func(s Stage, err error) error { return &StageError{RunID: res.RunID, Stage: s, Err: err} }

	var items []In
	err := g.timed(res.RunID, srcStage, func() (err error) {
		items, err = src.Items(ctx)
		return err
	})
	if err != nil {
		return fail(srcStage, err)
	}
	metrics.RecordRow(g.name, "sourced", int64(len(items)))

	var recs []record.Record
	err = g.timed(res.RunID, fnStage, func() (err error) {
		recs, err = transformer.Apply(ctx, items, fn, g.set.transform)
		return err
	})
	if err != nil {
		var ie *transformer.ItemError
		if errors.As(err, &ie) {
			metrics.RecordRow(g.name, "rejected", 1)
		}
		return fail(fnStage, err)
	}
	res.Records = len(recs)
	metrics.RecordRow(g.name, "transformed", int64(len(recs)))

	// Once issued, the write ignores caller cancellation and is bounded by
	// the writer timeout only.
	if err := ctx.Err(); err != nil {
		return fail(sinkStage, err)
	}
	err = g.timed(res.RunID, sinkStage, func() (err error) {
		res.Write, err = sk.writer.Write(context.WithoutCancel(ctx), sk.schema, recs, sk.target, sk.disposition)
		return err
	})
	if err != nil {
		return fail(sinkStage, err)
	}
	metrics.RecordRow(g.name, "written", res.Write.RowsWritten)
	return nil
}

func (g *Graph[In]) timed(runID string, s Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	metrics.RecordStep(g.name, s.Kind.String(), err, d)
	if g.set.verbose {
		log.Printf("pipeline: stage graph=%s run=%s stage=%s elapsed=%s err=%v", g.name, runID, s, d, err)
	}
	return err
}
