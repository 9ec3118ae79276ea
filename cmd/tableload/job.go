package main

import (
	"context"
	"fmt"
	"time"

	"tableload/internal/config"
	"tableload/internal/datasource"
	"tableload/internal/datasource/file"
	"tableload/internal/people"
	"tableload/internal/pipeline"
	"tableload/internal/record"
	"tableload/internal/sink"
	"tableload/internal/storage"
	"tableload/internal/transformer"
	"tableload/internal/transformer/builtin"
)

// steps turns the configured post-steps into a transformer chain.
func steps(ts []config.Transform) ([]transformer.Step, error) {
	out := make([]transformer.Step, 0, len(ts))
	for i, t := range ts {
		switch t.Kind {
		case "normalize":
			out = append(out, builtin.Normalize{})
		case "require":
			out = append(out, builtin.Require{Fields: t.Options.StringSlice("fields")})
		default:
			return nil, fmt.Errorf("transform[%d]: unknown kind %q", i, t.Kind)
		}
	}
	return out, nil
}

// newWriter builds the sink writer for p over st.
func newWriter(p config.Pipeline, st storage.Store) (*sink.Writer, error) {
	timeout, err := p.Sink.TimeoutDuration(sink.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return sink.NewWriter(st, sink.WithTimeout(timeout), sink.WithStrict(p.Sink.Strict)), nil
}

func graphOptions(p config.Pipeline, verbose bool) []pipeline.GraphOption {
	return []pipeline.GraphOption{
		pipeline.WithTransformOptions(transformer.Options{Workers: p.Runtime.Workers, MinPartition: p.Runtime.MinPartition}),
		pipeline.WithVerbose(verbose),
	}
}

// runJob builds a fresh graph for p and runs it once against st. Graphs are
// single-use, so every scheduled tick calls runJob again.
func runJob(ctx context.Context, p config.Pipeline, st storage.Store, verbose bool) (pipeline.RunResult, error) {
	d, err := sink.ParseDisposition(p.Sink.Create, p.Sink.Write)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	post, err := steps(p.Transform)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	w, err := newWriter(p, st)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	spec := pipeline.SinkSpec{Target: p.Sink.Target, Schema: p.Schema, Disposition: d, Writer: w}

	switch p.Source.Kind {
	case "ids":
		ids := p.Source.IDs
		if p.Source.Path != "" {
			if ids, err = file.ReadIDs(p.Source.Path); err != nil {
				return pipeline.RunResult{}, err
			}
		}
		g := pipeline.New[string](p.Job, graphOptions(p, verbose)...)
		if err := g.AddSource("ids", pipeline.FromSlice(ids)); err != nil {
			return pipeline.RunResult{}, err
		}
		if err := g.AddTransform("people", transformer.Then[string](people.Record, post...)); err != nil {
			return pipeline.RunResult{}, err
		}
		return buildAndRun(ctx, g, spec)
	case "ndjson":
		s := p.Schema
		g := pipeline.New[[]byte](p.Job, graphOptions(p, verbose)...)
		if err := g.AddSource("ndjson", datasource.Lines(datasource.Resolve(p.Source.Path, nil))); err != nil {
			return pipeline.RunResult{}, err
		}
		decode := func(line []byte) (record.Record, error) { return record.Decode(s, line) }
		if err := g.AddTransform("decode", transformer.Then[[]byte](decode, post...)); err != nil {
			return pipeline.RunResult{}, err
		}
		return buildAndRun(ctx, g, spec)
	}
	return pipeline.RunResult{}, fmt.Errorf("source: unknown kind %q", p.Source.Kind)
}

func buildAndRun[In any](ctx context.Context, g *pipeline.Graph[In], spec pipeline.SinkSpec) (pipeline.RunResult, error) {
	if err := g.AddSink("table", spec); err != nil {
		return pipeline.RunResult{}, err
	}
	if err := g.Build(); err != nil {
		return pipeline.RunResult{}, err
	}
	return g.Run(ctx)
}

func summary(res pipeline.RunResult) string {
	return fmt.Sprintf("run=%s target=%s created=%t rows_written=%d checksum=%016x elapsed=%s",
		res.RunID, res.Write.Target, res.Write.Created, res.Write.RowsWritten, res.Write.Checksum,
		res.Duration.Truncate(time.Millisecond))
}
