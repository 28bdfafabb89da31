// Package metrics holds the process-wide Prometheus collectors. They are
// registered with the default registry on import and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts API requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sway_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// BatchesServed counts batches returned, by batch type.
	BatchesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sway_batches_served_total",
			Help: "Total number of batches served",
		},
		[]string{"batch_type"},
	)

	// SignalsRecorded counts signals by label.
	SignalsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sway_signals_recorded_total",
			Help: "Total number of signals recorded",
		},
		[]string{"label"},
	)

	RankingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sway_ranking_duration_seconds",
			Help:    "Duration of the ranking pipeline in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	// CandidatesDropped counts candidates removed by the ranking pipeline,
	// by stage (threshold, dedup).
	CandidatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sway_ranking_candidates_dropped_total",
			Help: "Total number of candidates dropped by the ranking pipeline",
		},
		[]string{"stage"},
	)

	QuantizerTrainDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sway_quantizer_train_duration_seconds",
			Help:    "Duration of quantizer training in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"kind"},
	)

	// EventsDropped counts events the worker pool could not queue.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sway_events_dropped_total",
			Help: "Total number of events dropped on a full queue",
		},
		[]string{"event_type"},
	)
)
