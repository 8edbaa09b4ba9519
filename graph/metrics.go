package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for engine execution.
//
// Exposed metrics (namespace "opsmend"):
//
//   - runs_total (counter, label: status) — runs by terminal status
//     (succeeded / exhausted / aborted).
//   - run_steps (histogram) — node executions per run; watch this against
//     the configured step cap.
//   - node_duration_ms (histogram, labels: node_id, outcome) — per-node
//     execution latency including collaborator calls.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	engine := graph.New(schema, st, emitter, graph.Options{Metrics: metrics})
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	runs         *prometheus.CounterVec
	runSteps     prometheus.Histogram
	nodeDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the engine metrics with the given
// registry. Pass prometheus.DefaultRegisterer (or nil) for the global
// registry; a dedicated registry is recommended for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsmend",
			Name:      "runs_total",
			Help:      "Completed runs by terminal status",
		}, []string{"status"}),

		runSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "opsmend",
			Name:      "run_steps",
			Help:      "Node executions per run",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),

		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opsmend",
			Name:      "node_duration_ms",
			Help:      "Node execution duration in milliseconds, including collaborator calls",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_id", "outcome"}), // outcome: success, error
	}
}

// ObserveRun records a completed run's terminal status and step count.
func (m *Metrics) ObserveRun(status Status, steps int) {
	m.runs.WithLabelValues(status.String()).Inc()
	m.runSteps.Observe(float64(steps))
}

// ObserveNode records one node execution.
func (m *Metrics) ObserveNode(nodeID string, d time.Duration, outcome string) {
	m.nodeDuration.WithLabelValues(nodeID, outcome).Observe(float64(d.Milliseconds()))
}
