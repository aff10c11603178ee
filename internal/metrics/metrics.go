// Package metrics records pipeline counters for node_exporter's textfile
// collector.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "creditscope"

// Source statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Metrics holds one run's collectors on a private registry. All methods are
// safe on a nil receiver so callers can leave metrics off.
type Metrics struct {
	reg *prometheus.Registry

	sources    *prometheus.CounterVec
	records    *prometheus.CounterVec
	registered prometheus.Gauge
	merges     prometheus.Counter
	blocked    prometheus.Counter
	final      prometheus.Gauge
	duration   prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_total",
			Help:      "Sources processed, by outcome.",
		}, []string{"status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Program records extracted, by table.",
		}, []string{"table"}),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "programs_registered",
			Help:      "Program identities before reconciliation.",
		}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_merges_total",
			Help:      "Identities merged by reconciliation.",
		}),
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_blocked_total",
			Help:      "Merges refused because subsidy rates disagree.",
		}),
		final: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "programs_final",
			Help:      "Program identities after reconciliation.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
	m.reg.MustRegister(m.sources, m.records, m.registered, m.merges, m.blocked, m.final, m.duration)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Source counts one source outcome.
func (m *Metrics) Source(status string) {
	if m == nil {
		return
	}
	m.sources.WithLabelValues(status).Inc()
}

// Records counts records extracted from a table.
func (m *Metrics) Records(table, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(strconv.Itoa(table)).Add(float64(n))
}

// Reconciled records the identity counts around a reconciliation pass.
func (m *Metrics) Reconciled(before, after, merges, blocked int) {
	if m == nil {
		return
	}
	m.registered.Set(float64(before))
	m.final.Set(float64(after))
	m.merges.Add(float64(merges))
	m.blocked.Add(float64(blocked))
}

// Duration records the run wall time.
func (m *Metrics) Duration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Set(d.Seconds())
}

// WriteFile writes every collector in text exposition format. The file is
// written atomically.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
