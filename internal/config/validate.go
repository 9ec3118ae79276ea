package config

import (
	"fmt"
	"strings"
	"time"

	"tableload/internal/sink"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced but does
	// not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "sink.target",
// "transform[1].options.fields"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline lints p without mutating it. knownStorage lists the
// registered storage kinds; when empty, storage kinds are not checked.
func ValidatePipeline(p Pipeline, knownStorage ...string) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	if p.Schema.IsZero() {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "schema",
			Message:  "schema has no fields; set schema or schema_file",
		})
	}
	issues = append(issues, validateTransforms(p.Transform)...)
	issues = append(issues, validateSink(p.Sink)...)
	issues = append(issues, validateStorage(p.Storage, knownStorage)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	switch s.Kind {
	case "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
	case "ids":
		switch {
		case len(s.IDs) > 0 && strings.TrimSpace(s.Path) != "":
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source",
				Message:  "set either source.ids or source.path, not both",
			})
		case len(s.IDs) == 0 && strings.TrimSpace(s.Path) == "":
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.ids",
				Message:  "no ids configured; the run writes an empty batch",
			})
		}
	case "ndjson":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.path",
				Message:  "ndjson source requires a non-empty path",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; want ids or ndjson", s.Kind),
		})
	}
	return issues
}

func validateTransforms(ts []Transform) []Issue {
	var issues []Issue
	for i, t := range ts {
		switch t.Kind {
		case "normalize":
		case "require":
			if len(t.Options.StringSlice("fields")) == 0 {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     fmt.Sprintf("transform[%d].options.fields", i),
					Message:  "require transform has no fields; it will not enforce anything",
				})
			}
		case "":
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("transform[%d].kind", i),
				Message:  "transform kind must not be empty",
			})
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("transform[%d].kind", i),
				Message:  fmt.Sprintf("unknown transform kind %q; want normalize or require", t.Kind),
			})
		}
	}
	return issues
}

func validateSink(s Sink) []Issue {
	var issues []Issue
	if _, err := sink.ParseTableRef(s.Target); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.target",
			Message:  err.Error(),
		})
	}
	if s.Create != "" {
		if _, err := sink.ParseCreate(s.Create); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: "sink.create", Message: err.Error()})
		}
	}
	if s.Write != "" {
		if _, err := sink.ParseWrite(s.Write); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: "sink.write", Message: err.Error()})
		}
	}
	if d, err := s.TimeoutDuration(sink.DefaultTimeout); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: "sink.timeout", Message: err.Error()})
	} else if d <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.timeout",
			Message:  "non-positive timeout disables the write bound",
		})
	} else if d < time.Second {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.timeout",
			Message:  fmt.Sprintf("timeout %s is very short for a remote table store", d),
		})
	}
	return issues
}

func validateStorage(s Storage, known []string) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}
	if len(known) > 0 {
		found := false
		for _, k := range known {
			if strings.EqualFold(k, s.Kind) {
				found = true
				break
			}
		}
		if !found {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.kind",
				Message:  fmt.Sprintf("unknown storage kind %q (registered: %s)", s.Kind, strings.Join(known, ", ")),
			})
		}
	}
	if s.Kind != "memory" && strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}
	if n := s.Options.Int("batch_size", 1); n <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.options.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; the backend default is used instead", n),
		})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.MinPartition < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.min_partition",
			Message:  "min_partition must not be negative",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires pushgateway_url",
			})
		}
	case "datadog":
		if m.StatsdAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.statsd_addr",
				Message:  "datadog backend requires statsd_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; want none, pushgateway or datadog", m.Backend),
		})
	}
	return issues
}
