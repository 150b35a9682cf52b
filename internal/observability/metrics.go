// Package observability provides Prometheus metrics for the pixsort service.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry

	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	PredictionTotal  prometheus.Counter
	PredictionErrors prometheus.Counter
	CommitMoves      *prometheus.CounterVec
	PendingActions   prometheus.Gauge
}

// NewMetrics creates a new instance of Metrics on a dedicated registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}

	m.TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixsort_training_runs_total",
			Help: "Training runs partitioned by kind (full, extend, reuse) and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	m.TrainingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pixsort_training_duration_seconds",
			Help:    "Wall-clock duration of head training runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
	m.PredictionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pixsort_predictions_total",
			Help: "Total number of single-image classification requests.",
		},
	)
	m.PredictionErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pixsort_prediction_errors_total",
			Help: "Classification requests that ended in an error.",
		},
	)
	m.CommitMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixsort_commit_moves_total",
			Help: "Committed image moves partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.PendingActions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixsort_pending_actions",
			Help: "Number of staged moves currently waiting for commit.",
		},
	)

	collectors := []prometheus.Collector{
		m.TrainingRuns,
		m.TrainingDuration,
		m.PredictionTotal,
		m.PredictionErrors,
		m.CommitMoves,
		m.PendingActions,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics collector: %w", err)
		}
	}

	return m, nil
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
