// Package datadog sends pipeline metrics to a DogStatsD agent. Labels become
// "key:value" tags, counters are Counts and durations are Histograms.
package datadog

import (
	"errors"
	"sort"

	"github.com/DataDog/datadog-go/v5/statsd"

	"tableload/internal/metrics"
)

// Config configures the DogStatsD client.
type Config struct {
	// Addr is "host:port" or "unix:///path/to/socket". Required.
	Addr string
	// Namespace prefixes every metric name, e.g. "prod.".
	Namespace string
	// GlobalTags are added to every metric, e.g. "service:tableload".
	GlobalTags []string
}

// sender is the part of *statsd.Client the backend uses.
type sender interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Flush() error
	Close() error
}

// Backend implements metrics.Backend over DogStatsD.
type Backend struct {
	c sender
}

var _ metrics.Backend = (*Backend)(nil)

func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("datadog: Addr is required")
	}
	opts := []statsd.Option{statsd.WithTags(cfg.GlobalTags)}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Backend{c: c}, nil
}

// IncCounter sends delta as a Count, truncated to an integer.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.c == nil {
		return
	}
	_ = b.c.Count(name, int64(delta), tags(labels), 1)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.c == nil {
		return
	}
	_ = b.c.Histogram(name, value, tags(labels), 1)
}

// Flush sends buffered metrics. The client stays usable, so scheduled runs
// can flush after every tick.
func (b *Backend) Flush() error {
	if b.c == nil {
		return nil
	}
	return b.c.Flush()
}

// Close flushes and releases the client.
func (b *Backend) Close() error {
	if b.c == nil {
		return nil
	}
	return b.c.Close()
}

func tags(l metrics.Labels) []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, 0, len(l))
	for k, v := range l {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
