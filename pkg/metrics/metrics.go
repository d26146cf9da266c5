// Package metrics provides Prometheus metrics for the Clover pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SitesProcessed tracks completed site passes by outcome
	SitesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "pipeline",
			Name:      "sites_total",
			Help:      "Total number of site passes by outcome",
		},
		[]string{"source", "status"},
	)

	// SiteDuration tracks per-site pass duration in seconds
	SiteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "pipeline",
			Name:      "site_duration_seconds",
			Help:      "Duration of per-site pipeline passes in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"source"},
	)

	// ProductsExtracted tracks raw items produced by extraction
	ProductsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "extract",
			Name:      "items_total",
			Help:      "Total number of raw items extracted",
		},
		[]string{"source", "mode"},
	)

	// ProductsSkipped tracks records dropped during mapping
	ProductsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "mapping",
			Name:      "skipped_total",
			Help:      "Total number of records dropped during mapping",
		},
		[]string{"source", "reason"},
	)

	// EmbeddingsTotal tracks embedding attempts by outcome
	EmbeddingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "embeddings",
			Name:      "attempts_total",
			Help:      "Total number of embedding attempts by outcome",
		},
		[]string{"status"},
	)

	// EmbeddingDuration tracks embedding latency (fetch + inference)
	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "embeddings",
			Name:      "duration_seconds",
			Help:      "Duration of embedding attempts in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// UpsertBatches tracks storage upsert calls by outcome
	UpsertBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "store",
			Name:      "upsert_batches_total",
			Help:      "Total number of upsert batch calls by outcome",
		},
		[]string{"status"},
	)

	// UpsertRows tracks rows written to the store
	UpsertRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "store",
			Name:      "upsert_rows_total",
			Help:      "Total number of rows written to the store",
		},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// KafkaMessagesPublished tracks event messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"event_type"},
	)
)

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordSitePass records a completed site pass
func RecordSitePass(source, status string, durationSeconds float64) {
	SitesProcessed.WithLabelValues(source, status).Inc()
	SiteDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordEmbedding records an embedding attempt
func RecordEmbedding(status string, durationSeconds float64) {
	EmbeddingsTotal.WithLabelValues(status).Inc()
	EmbeddingDuration.Observe(durationSeconds)
}

// RecordUpsertBatch records an upsert batch call
func RecordUpsertBatch(status string, rows int) {
	UpsertBatches.WithLabelValues(status).Inc()
	if status == "success" {
		UpsertRows.Add(float64(rows))
	}
}
