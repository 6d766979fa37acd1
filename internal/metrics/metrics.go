// Package metrics records what a run did in Prometheus form. Runs are short
// lived, so metrics are written once as a node_exporter textfile instead of
// being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rollupctl"

// Recorder collects the metrics of one process. A nil *Recorder discards
// everything.
type Recorder struct {
	registry *prometheus.Registry

	transactions  *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	components    *prometheus.CounterVec
	runs          *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// New returns a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Confirmed transactions by phase.",
		}, []string{"phase"}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each run phase.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"phase"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Run failures by kind.",
		}, []string{"kind"}),
		components: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "components_bound_total",
			Help:      "Components bound to an address, by how the address was obtained.",
		}, []string{"source"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by mode and status.",
		}, []string{"mode", "status"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
}

// Transaction counts a confirmed transaction.
func (r *Recorder) Transaction(phase string) {
	if r == nil {
		return
	}
	r.transactions.WithLabelValues(phase).Inc()
}

// Phase observes how long a phase took.
func (r *Recorder) Phase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// Failure counts a failed run.
func (r *Recorder) Failure(kind string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(kind).Inc()
}

// Bound counts a component bound to an address.
func (r *Recorder) Bound(source string) {
	if r == nil {
		return
	}
	r.components.WithLabelValues(source).Inc()
}

// Run counts a finished run.
func (r *Recorder) Run(mode, status string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(mode, status).Inc()
	r.lastRun.SetToCurrentTime()
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Gatherer()); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
