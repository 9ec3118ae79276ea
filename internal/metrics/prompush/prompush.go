// Package prompush pushes pipeline metrics to a Prometheus Pushgateway.
//
// Runs are short-lived batch jobs, so the backend keeps a private registry
// and pushes it on Flush, grouped under the job name.
package prompush

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"tableload/internal/metrics"
)

// Backend implements metrics.Backend over a Pushgateway.
type Backend struct {
	url string
	job string
	reg *prometheus.Registry

	steps    *prometheus.CounterVec
	duration *prometheus.SummaryVec
	records  *prometheus.CounterVec
	batches  prometheus.Counter
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend registers the tableload metrics on a fresh registry. job is the
// Pushgateway grouping key and defaults to "tableload".
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, errors.New("prompush: gateway URL is required")
	}
	if job == "" {
		job = "tableload"
	}
	b := &Backend{
		url: gatewayURL,
		job: job,
		reg: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline stage executions by stage and status.",
		}, []string{"step", "status"}),
		duration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "Pipeline stage duration in seconds by stage and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records by kind: sourced, transformed, written, rejected.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Insert batches sent to the storage backend.",
		}),
	}
	for _, c := range []prometheus.Collector{b.steps, b.duration, b.records, b.batches} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}
	return b, nil
}

// IncCounter ignores names it does not know. The job label is dropped since
// it is the grouping key.
func (b *Backend) IncCounter(name string, delta float64, l metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(l["step"], l["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.records.WithLabelValues(l["kind"]).Add(delta)
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, v float64, l metrics.Labels) {
	if name == metrics.StepDurationSeconds {
		b.duration.WithLabelValues(l["step"], l["status"]).Observe(v)
	}
}

// Flush replaces the job's group on the Pushgateway with the registry.
func (b *Backend) Flush() error {
	if err := push.New(b.url, b.job).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push %s: %w", b.job, err)
	}
	return nil
}
