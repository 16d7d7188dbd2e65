// Package metrics exposes the Prometheus instrumentation surface for
// the artifact repository: request latency by route and status, blob
// bytes moved through the Blob Store Adapter, and lease-contention
// counts from the HTTP blob upload handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relic_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relic_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	ArtifactsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relic_artifacts_total",
			Help: "Total number of artifacts by type and status",
		},
		[]string{"type", "status"},
	)

	BlobBytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relic_blob_bytes_transferred_total",
			Help: "Total blob bytes moved through the blob store adapter by direction",
		},
		[]string{"direction"}, // "upload" or "download"
	)

	BlobUploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relic_blob_upload_duration_seconds",
			Help:    "Time taken to stream a blob upload to the backing store",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlobLeaseContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relic_blob_lease_contention_total",
			Help: "Total number of blob uploads rejected because the slot was already saving or active",
		},
	)

	BlobLeasesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relic_blob_leases_expired_total",
			Help: "Total number of blob upload leases reclaimed by the expiry sweep",
		},
	)

	PatchOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relic_patch_operations_total",
			Help: "Total number of JSON Patch operations applied, by outcome",
		},
		[]string{"outcome"}, // "applied" or "rejected"
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ArtifactsTotal)
	prometheus.MustRegister(BlobBytesTransferred)
	prometheus.MustRegister(BlobUploadDuration)
	prometheus.MustRegister(BlobLeaseContentionTotal)
	prometheus.MustRegister(BlobLeasesExpiredTotal)
	prometheus.MustRegister(PatchOperationsTotal)
}

// Handler returns the Prometheus scrape handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one operation and reports it to a histogram or counter on
// completion.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
