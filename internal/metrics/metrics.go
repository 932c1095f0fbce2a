// Package metrics exposes Prometheus collectors for the sync pipeline and
// search path. All collectors register on the default registry and are
// served by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsProcessed counts indexing outcomes.
	// Labels: doc_type, result (indexed, deleted, failed, skipped)
	DocumentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusd",
			Subsystem: "sync",
			Name:      "documents_processed_total",
			Help:      "Total number of document tasks processed by outcome",
		},
		[]string{"doc_type", "result"},
	)

	// QueueDepth tracks the number of tasks waiting in the sync queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "corpusd",
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Current number of tasks waiting in the sync queue",
		},
	)

	// ScanDuration tracks how long a full per-user scan takes.
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "corpusd",
			Subsystem: "sync",
			Name:      "scan_duration_seconds",
			Help:      "Duration of full per-user discovery scans in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// StalePlaceholdersRemoved counts abandoned placeholder chunks cleaned up.
	StalePlaceholdersRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "corpusd",
			Subsystem: "sync",
			Name:      "stale_placeholders_removed_total",
			Help:      "Total number of stale placeholder chunks removed during scans",
		},
	)

	// EmbedDuration tracks embedding latency per batch.
	EmbedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "corpusd",
			Subsystem: "embeddings",
			Name:      "embed_duration_seconds",
			Help:      "Duration of embedding batches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// SearchDuration tracks end-to-end search latency by mode.
	// Labels: mode (semantic, bm25, hybrid)
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpusd",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search latency in seconds by retrieval mode",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// SearchResultsDropped counts hits removed after retrieval.
	// Labels: reason (access_denied, threshold, placeholder)
	SearchResultsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusd",
			Subsystem: "search",
			Name:      "results_dropped_total",
			Help:      "Total number of candidate hits dropped before returning results",
		},
		[]string{"reason"},
	)

	// AccessCacheHits counts verifier cache lookups.
	// Labels: result (hit, miss)
	AccessCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusd",
			Subsystem: "access",
			Name:      "cache_lookups_total",
			Help:      "Total number of access verifier cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordProcessed records one task outcome.
func RecordProcessed(docType, result string) {
	DocumentsProcessed.WithLabelValues(docType, result).Inc()
}
