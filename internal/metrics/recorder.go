// Package metrics exposes pipeline counters on a private Prometheus registry.
// A batch run has no scrape endpoint, so the registry is dumped to a text file
// at the end of the run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records pipeline activity. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	pagesWritten     *prometheus.CounterVec
	pagesRead        *prometheus.CounterVec
	unitsCompleted   *prometheus.CounterVec
	stageErrors      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	trials           *prometheus.CounterVec
	trialDuration    prometheus.Histogram
	windowsProcessed *prometheus.CounterVec
	allocFailures    *prometheus.CounterVec
}

// New creates a recorder on its own registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		pagesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "royale_pages_written_total",
				Help: "Total number of stage pages written",
			},
			[]string{"stage"},
		),
		pagesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "royale_pages_read_total",
				Help: "Total number of stage pages read",
			},
			[]string{"stage"},
		),
		unitsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "royale_units_completed_total",
				Help: "Total number of (strategy, symbol) units completed per stage",
			},
			[]string{"stage"},
		),
		stageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "royale_stage_errors_total",
				Help: "Total number of unit failures per stage and error kind",
			},
			[]string{"stage", "kind"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "royale_stage_duration_seconds",
				Help:    "Duration of stage runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"stage"},
		),
		trials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "royale_optimizer_trials_total",
				Help: "Total number of optimizer trials by final state",
			},
			[]string{"state"},
		),
		trialDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "royale_optimizer_trial_duration_seconds",
				Help:    "Duration of optimizer trials in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		windowsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "royale_walkforward_windows_total",
				Help: "Total number of walk-forward windows processed",
			},
			[]string{"strategy", "status"},
		),
		allocFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "royale_allocation_failures_total",
				Help: "Total number of allocator rows that failed to optimise",
			},
			[]string{"allocator"},
		),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

func (r *Recorder) PagesWritten(stage string, n int) {
	if r == nil {
		return
	}

	r.pagesWritten.WithLabelValues(stage).Add(float64(n))
}

func (r *Recorder) PageRead(stage string) {
	if r == nil {
		return
	}

	r.pagesRead.WithLabelValues(stage).Inc()
}

func (r *Recorder) UnitCompleted(stage string) {
	if r == nil {
		return
	}

	r.unitsCompleted.WithLabelValues(stage).Inc()
}

// StageError records a failed unit. kind is the short error kind, e.g. cancelled.
func (r *Recorder) StageError(stage, kind string) {
	if r == nil {
		return
	}

	r.stageErrors.WithLabelValues(stage, kind).Inc()
}

func (r *Recorder) StageDuration(stage string, d time.Duration) {
	if r == nil {
		return
	}

	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) TrialFinished(state string, d time.Duration) {
	if r == nil {
		return
	}

	r.trials.WithLabelValues(state).Inc()
	r.trialDuration.Observe(d.Seconds())
}

// WindowProcessed records a walk-forward window; status is ok or failed.
func (r *Recorder) WindowProcessed(strategy, status string) {
	if r == nil {
		return
	}

	r.windowsProcessed.WithLabelValues(strategy, status).Inc()
}

func (r *Recorder) AllocationFailures(allocator string, n int) {
	if r == nil || n == 0 {
		return
	}

	r.allocFailures.WithLabelValues(allocator).Add(float64(n))
}

// WriteTextfile writes the registry in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}

	return prometheus.WriteToTextfile(path, r.registry)
}
