// Package metrics exposes Prometheus metrics for search jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/annealcycle/internal/cycle"
)

// Metrics holds the collectors of one registry. Each Metrics has its own
// registry so tests and multiple servers do not collide.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal      *prometheus.CounterVec
	JobsRunning    prometheus.Gauge
	SearchDuration *prometheus.HistogramVec
	Iterations     *prometheus.CounterVec
	BestCost       *prometheus.GaugeVec
	GraphVertices  prometheus.Histogram
	Checkpoints    *prometheus.CounterVec
	CostRequests   *prometheus.CounterVec
}

// New registers all collectors under namespace. Go runtime and process
// collectors are included.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Search jobs by method and final state",
		}, []string{"method", "state"}),

		JobsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Search jobs currently running",
		}),

		SearchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Wall time of finished searches",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"method"}),

		Iterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Search iterations performed",
		}, []string{"method"}),

		BestCost: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_cost",
			Help:      "Best cycle cost of the last finished job; +Inf when no feasible cycle was found",
		}, []string{"method"}),

		GraphVertices: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_vertices",
			Help:      "Vertex count of searched graphs",
			Buckets:   []float64{3, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		Checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoint saves by result",
		}, []string{"result"}),

		CostRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_requests_total",
			Help:      "Cost evaluations served over HTTP by result",
		}, []string{"result"}),
	}
}

// JobStarted records a job entering the running state.
func (m *Metrics) JobStarted(vertices int) {
	m.JobsRunning.Inc()
	m.GraphVertices.Observe(float64(vertices))
}

// JobFinished records the outcome of a job that was running.
func (m *Metrics) JobFinished(method, state string, iterations int, best cycle.Cost, elapsed time.Duration) {
	m.JobsRunning.Dec()
	m.JobsTotal.WithLabelValues(method, state).Inc()
	m.SearchDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	m.Iterations.WithLabelValues(method).Add(float64(iterations))
	m.BestCost.WithLabelValues(method).Set(float64(best))
}

// CheckpointSaved counts a checkpoint attempt.
func (m *Metrics) CheckpointSaved(err error) {
	m.Checkpoints.WithLabelValues(result(err)).Inc()
}

// CostServed counts a cost request.
func (m *Metrics) CostServed(err error) {
	m.CostRequests.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
