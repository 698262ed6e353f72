// Package metrics collects Prometheus metrics about formula parsing and
// evaluation.
//
// Metrics:
//   - <ns>_sweeps_total: completed sweeps by kind
//   - <ns>_sweep_samples_total: samples evaluated by sweep kind
//   - <ns>_sweep_failed_samples_total: samples which evaluated to NaN because of an error
//   - <ns>_sweep_duration_seconds: sweep duration by kind
//   - <ns>_parses_total: parse attempts by result
//   - <ns>_evaluations_total: scalar evaluations by mode and result
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zephyrtronium/formulas"
)

// Collector records metrics to a registry. It implements formulas.Observer
// and is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	sweeps        *prometheus.CounterVec
	samples       *prometheus.CounterVec
	failed        *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	parses        *prometheus.CounterVec
	evals         *prometheus.CounterVec
}

var _ formulas.Observer = (*Collector)(nil)

// New creates a collector and registers its metrics with registry. If
// registry is nil, a new one is created.
func New(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeps_total",
				Help:      "Total number of completed sweeps.",
			},
			[]string{"kind"},
		),
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_samples_total",
				Help:      "Total number of samples evaluated by sweeps.",
			},
			[]string{"kind"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_failed_samples_total",
				Help:      "Total number of sweep samples recorded as NaN because evaluation failed.",
			},
			[]string{"kind"},
		),
		sweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of sweeps in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to 26s
			},
			[]string{"kind"},
		),
		parses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parses_total",
				Help:      "Total number of parse attempts.",
			},
			[]string{"result"},
		),
		evals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of scalar evaluations.",
			},
			[]string{"mode", "result"},
		),
	}
	registry.MustRegister(c.sweeps, c.samples, c.failed, c.sweepDuration, c.parses, c.evals)
	return c
}

// ObserveSweep records a completed sweep.
func (c *Collector) ObserveSweep(kind string, samples, failed int, elapsed time.Duration) {
	c.sweeps.WithLabelValues(kind).Inc()
	c.samples.WithLabelValues(kind).Add(float64(samples))
	c.failed.WithLabelValues(kind).Add(float64(failed))
	c.sweepDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveParse records the result of a parse.
func (c *Collector) ObserveParse(err error) {
	c.parses.WithLabelValues(result(err)).Inc()
}

// ObserveEval records the result of a scalar evaluation. mode is "float" or
// "precise".
func (c *Collector) ObserveEval(mode string, err error) {
	c.evals.WithLabelValues(mode, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the registry's metrics to path in the format read by
// the node exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
