package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"tableload/internal/config"
	"tableload/internal/metrics"
	"tableload/internal/metrics/datadog"
	"tableload/internal/metrics/prompush"
	"tableload/internal/people"
	"tableload/internal/schema"
	"tableload/internal/storage"

	// register all backends with the storage factory.
	_ "tableload/internal/storage/all"
)

type flags struct {
	cfgPath     string
	output      string
	storageKind string
	dsn         string
	schemaPath  string
	ids         string
	create      string
	write       string
	strict      bool
	workers     int
	timeout     time.Duration
	validate    bool
	metrics     string
	pushgateway string
	statsd      string
	schedule    string
	verbose     bool
}

// main loads the job (or builds the reference people job), sets up metrics
// and runs the pipeline once or on a cron schedule.
func main() {
	var f flags
	flag.StringVar(&f.cfgPath, "config", "", "job config path (.json, .yaml); empty runs the people workflow")
	flag.StringVar(&f.output, "output", "", "target table as PROJECT:DATASET.TABLE or DATASET.TABLE")
	flag.StringVar(&f.storageKind, "storage", "", "storage backend ("+strings.Join(storage.ListKinds(), ", ")+")")
	flag.StringVar(&f.dsn, "dsn", "", "storage DSN")
	flag.StringVar(&f.schemaPath, "schema", "", "schema file overriding the job schema")
	flag.StringVar(&f.ids, "ids", "", "comma-separated ids for the people workflow")
	flag.StringVar(&f.create, "create", "", "create disposition (CREATE_IF_NEEDED, CREATE_NEVER)")
	flag.StringVar(&f.write, "write", "", "write disposition (WRITE_APPEND, WRITE_TRUNCATE, WRITE_EMPTY)")
	flag.BoolVar(&f.strict, "strict", false, "validate every record against the schema before writing")
	flag.IntVar(&f.workers, "workers", 0, "transform workers (0 = GOMAXPROCS)")
	flag.DurationVar(&f.timeout, "timeout", 0, "sink timeout (0 = job setting or 30s)")
	flag.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")
	flag.StringVar(&f.metrics, "metrics-backend", "", "metrics backend (none, pushgateway, datadog)")
	flag.StringVar(&f.pushgateway, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&f.statsd, "statsd-addr", "", "DogStatsD address (overrides env DD_AGENT_ADDR)")
	flag.StringVar(&f.schedule, "schedule", "", "cron expression; run repeatedly instead of once")
	flag.BoolVar(&f.verbose, "v", false, "enable verbose logs")
	flag.Parse()

	p, err := loadJob(f)
	if err != nil {
		fatalf("config: %v", err)
	}

	issues := config.ValidatePipeline(p, storage.ListKinds()...)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: job=%s", p.Job)
		os.Exit(1)
	}
	if f.validate {
		log.Printf("configuration is valid: job=%s", p.Job)
		os.Exit(0)
	}

	flush := setupMetrics(p)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN, Options: storage.Options(p.Storage.Options.Map())})
	if err != nil {
		fatalf("storage: %v", err)
	}
	defer st.Close()

	if f.verbose {
		log.Printf("tableload: job=%s source=%s storage=%s target=%s create=%s write=%s",
			p.Job, p.Source.Kind, p.Storage.Kind, p.Sink.Target, p.Sink.Create, p.Sink.Write)
	}

	if f.schedule == "" {
		res, err := runJob(ctx, p, st, f.verbose)
		if err != nil {
			log.Printf("tableload: job=%s failed: %v", p.Job, err)
			flush()
			os.Exit(1)
		}
		log.Printf("tableload: job=%s %s", p.Job, summary(res))
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(f.schedule, func() {
		res, err := runJob(ctx, p, st, f.verbose)
		if err != nil {
			log.Printf("tableload cron: job=%s failed: %v", p.Job, err)
		} else {
			log.Printf("tableload cron: job=%s %s", p.Job, summary(res))
		}
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}); err != nil {
		fatalf("schedule %q: %v", f.schedule, err)
	}
	c.Start()
	log.Printf("tableload cron: job=%s schedule=%q", p.Job, f.schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	log.Printf("tableload cron: stopped")
}

// loadJob reads the config file, or builds the people job when none is
// given, then applies env overrides and finally flags.
func loadJob(f flags) (config.Pipeline, error) {
	var p config.Pipeline
	if f.cfgPath != "" {
		var err error
		if p, err = config.Load(f.cfgPath); err != nil {
			return p, err
		}
	} else {
		var err error
		if p, err = peopleJob(); err != nil {
			return p, err
		}
	}
	if err := config.ApplyEnv(&p, os.Getenv); err != nil {
		return p, err
	}
	return applyFlags(p, f)
}

// peopleJob is the reference workflow: ids 1..5 into a nested and repeated
// people table, truncating on every run.
func peopleJob() (config.Pipeline, error) {
	s, err := people.Schema()
	if err != nil {
		return config.Pipeline{}, err
	}
	return config.Pipeline{
		Job:     "people",
		Source:  config.Source{Kind: "ids", IDs: append([]string(nil), people.DefaultIDs...)},
		Schema:  s,
		Sink:    config.Sink{Target: "people.people", Create: "CREATE_IF_NEEDED", Write: "WRITE_TRUNCATE"},
		Storage: config.Storage{Kind: "memory"},
	}, nil
}

func applyFlags(p config.Pipeline, f flags) (config.Pipeline, error) {
	if f.output != "" {
		p.Sink.Target = f.output
	}
	if f.storageKind != "" {
		p.Storage.Kind = f.storageKind
	}
	if f.dsn != "" {
		p.Storage.DSN = f.dsn
	}
	if f.schemaPath != "" {
		s, err := schema.Load(f.schemaPath)
		if err != nil {
			return p, err
		}
		p.Schema = s
	}
	if f.ids != "" {
		p.Source = config.Source{Kind: "ids"}
		for _, id := range strings.Split(f.ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				p.Source.IDs = append(p.Source.IDs, id)
			}
		}
	}
	if f.create != "" {
		p.Sink.Create = f.create
	}
	if f.write != "" {
		p.Sink.Write = f.write
	}
	if f.strict {
		p.Sink.Strict = true
	}
	if f.workers > 0 {
		p.Runtime.Workers = f.workers
	}
	if f.timeout > 0 {
		p.Sink.Timeout = f.timeout.String()
	}
	if f.metrics != "" {
		p.Metrics.Backend = f.metrics
	}
	if f.pushgateway != "" {
		p.Metrics.PushgatewayURL = f.pushgateway
	}
	if f.statsd != "" {
		p.Metrics.StatsdAddr = f.statsd
	}
	if p.Metrics.Backend == "" {
		p.Metrics.Backend = os.Getenv("METRICS_BACKEND")
	}
	if p.Metrics.PushgatewayURL == "" {
		p.Metrics.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	}
	if p.Metrics.StatsdAddr == "" {
		p.Metrics.StatsdAddr = os.Getenv("DD_AGENT_ADDR")
	}
	return p, nil
}

// setupMetrics installs the configured backend and returns a flush func.
func setupMetrics(p config.Pipeline) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch p.Metrics.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(p.Job, p.Metrics.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       p.Metrics.StatsdAddr,
			GlobalTags: []string{"service:tableload", "job:" + p.Job},
		})
	default:
		return func() {}
	}
	if err != nil {
		log.Printf("metrics: failed to init %s backend: %v; using nop", p.Metrics.Backend, err)
		return func() {}
	}
	log.Printf("metrics: backend=%s job=%s", p.Metrics.Backend, p.Job)
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Printf("metrics: close error: %v", err)
			}
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
