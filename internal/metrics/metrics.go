package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinestream_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinestream_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuthorizationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinestream_authorization_failures_total",
			Help: "Requests rejected by session resolution or the permission gate",
		},
		[]string{"type"},
	)

	UploadSessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinestream_upload_sessions_opened_total",
			Help: "Resumable upload sessions opened with the storage provider",
		},
	)

	UploadChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinestream_upload_chunks_total",
			Help: "Chunk calls by outcome (accepted, completed, rejected, failed)",
		},
		[]string{"outcome"},
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinestream_upload_bytes_total",
			Help: "Bytes forwarded to the storage provider",
		},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinestream_provider_request_duration_seconds",
			Help:    "Latency of storage provider calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation", "status"},
	)

	ProviderBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinestream_provider_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	UploadSessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinestream_upload_sessions_expired_total",
			Help: "Open upload sessions marked expired by the sweeper",
		},
	)
)

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordProviderCall(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}
