package report

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels of the collectors, and the outcome label value of a successful run.
const (
	PhaseLabel   = "phase"
	OutcomeLabel = "outcome"
	Succeeded    = "succeeded"
)

// Metrics are the prometheus collectors of a run.
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	trees    prometheus.Counter
	widths   prometheus.Histogram
	phases   *prometheus.GaugeVec
	outcomes *prometheus.CounterVec
}

// NewMetrics returns metrics registered in their own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trees: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tensororder_join_trees_total",
				Help: "Number of join trees read from the planner",
			},
		),
		widths: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tensororder_join_tree_tensor_width",
				Help:    "Tensor width of the join trees read from the planner",
				Buckets: prometheus.LinearBuckets(5, 5, 8),
			},
		),
		phases: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tensororder_phase_duration_seconds",
				Help: "Time spent in each phase of the last run",
			},
			[]string{PhaseLabel},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tensororder_outcomes_total",
				Help: "Outcome of runs, by error code",
			},
			[]string{OutcomeLabel},
		),
	}
	m.registry.MustRegister(m.trees, m.widths, m.phases, m.outcomes)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TreeParsed counts a join tree of the given tensor width.
func (m *Metrics) TreeParsed(width int) {
	if m == nil {
		return
	}
	m.trees.Inc()
	m.widths.Observe(float64(width))
}

// Phase records the duration of a phase.
func (m *Metrics) Phase(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.phases.WithLabelValues(name).Set(d.Seconds())
}

// Outcome counts a run ending with the given error code, or a successful one if code is empty.
func (m *Metrics) Outcome(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = Succeeded
	}
	m.outcomes.WithLabelValues(code).Inc()
}

// WriteFile writes the metrics to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "could not write metrics to %q", path)
}
