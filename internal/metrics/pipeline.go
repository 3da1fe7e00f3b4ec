package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Vector index, indexing and search metrics.
var (
	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_operations_total",
			Help:      "Vector index calls by backend, operation and outcome",
		},
		[]string{"backend", "op", "status"},
	)

	IndexOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "index_operation_duration_seconds",
			Help:      "Vector index call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"backend", "op"},
	)

	IndexingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "indexing_total",
			Help:      "Product indexing outcomes",
		},
		[]string{"event", "result"}, // result: indexed, skipped, stale, deleted, delete_failed
	)

	IndexingQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "indexing_queue_depth",
			Help:      "Events waiting in the indexing queue",
		},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_requests_total",
			Help:      "Semantic search requests by outcome",
		},
		[]string{"status"},
	)

	SearchUnresolvedHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_unresolved_hits_total",
			Help:      "Index hits dropped because the product no longer exists",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers index, indexing and search metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IndexOperationsTotal)
	prometheus.MustRegister(IndexOperationDuration)
	prometheus.MustRegister(IndexingTotal)
	prometheus.MustRegister(IndexingQueueDepth)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchUnresolvedHitsTotal)
	pipelineMetricsRegistered = true
}

// ObserveIndexOp records one vector index call.
func ObserveIndexOp(backend, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	IndexOperationsTotal.WithLabelValues(backend, op, status).Inc()
	IndexOperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
