package sync

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects per-engine counters. Each engine owns its registry so
// runs in the same process do not share state.
type Metrics struct {
	registry *prometheus.Registry

	outcomes *prometheus.CounterVec
	files    *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates the workflowsync metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflowsync_outcomes_total",
				Help: "Total number of processed repositories by outcome",
			},
			[]string{"status"}, // success, skipped, no_changes, error
		),
		files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflowsync_files_written_total",
				Help: "Total number of workflow file commits attempted on sync branches",
			},
			[]string{"result"}, // ok, failed
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "workflowsync_repository_duration_seconds",
				Help: "Time spent processing a single repository",
				Buckets: []float64{
					0.5,
					1,
					2.5,
					5,
					10,
					30,
					60,
					300, // rate limit waits
				},
			},
		),
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the node-exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

func (m *Metrics) observe(o Outcome) {
	m.outcomes.WithLabelValues(string(o.Status)).Inc()
	m.duration.Observe(o.Duration.Seconds())
}

func (m *Metrics) fileWritten(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.files.WithLabelValues(result).Inc()
}
