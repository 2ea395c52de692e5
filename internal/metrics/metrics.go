// Package metrics provides Prometheus-compatible counters and gauges for
// proctord. The daemon registers two gauges: active sessions and
// dead-lettered session reports.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// MetricType distinguishes counters from gauges in the exposition format.
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
)

func (t MetricType) String() string {
	if t == TypeGauge {
		return "gauge"
	}
	return "counter"
}

// Counter is a monotonically increasing, thread-safe counter.
type Counter struct {
	name, help string
	value      atomic.Uint64
}

// NewCounter creates a standalone Counter not attached to a Registry.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc()             { c.value.Add(1) }
func (c *Counter) Add(v uint64)     { c.value.Add(v) }
func (c *Counter) Value() uint64    { return c.value.Load() }
func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Gauge is a value that can move up or down.
type Gauge struct {
	name, help string
	value      atomic.Int64
}

// NewGauge creates a standalone Gauge not attached to a Registry.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v int64)      { g.value.Store(v) }
func (g *Gauge) Inc()             { g.value.Add(1) }
func (g *Gauge) Dec()             { g.value.Add(-1) }
func (g *Gauge) Value() int64     { return g.value.Load() }
func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

type metric interface {
	Name() string
	Help() string
	Type() MetricType
	valueString() string
}

func (c *Counter) valueString() string { return fmt.Sprintf("%d", c.Value()) }
func (g *Gauge) valueString() string   { return fmt.Sprintf("%d", g.Value()) }

// Registry collects metrics for scraping.
type Registry struct {
	mu      sync.Mutex
	metrics map[string]metric
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]metric)}
}

// Counter returns the named counter, creating it on first use.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m.(*Counter)
	}
	c := NewCounter(name, help)
	r.metrics[name] = c
	return c
}

// Gauge returns the named gauge, creating it on first use.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m.(*Gauge)
	}
	g := NewGauge(name, help)
	r.metrics[name] = g
	return g
}

// WriteTo renders the registry in Prometheus text exposition format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var total int64
	for _, name := range names {
		m := r.metrics[name]
		n, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %s\n",
			m.Name(), m.Help(), m.Name(), m.Type(), m.Name(), m.valueString())
		total += int64(n)
		if err != nil {
			r.mu.Unlock()
			return total, err
		}
	}
	r.mu.Unlock()
	return total, nil
}

// Handler returns an http.Handler that exposes the registry at /metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WriteTo(w)
	})
}
