package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseforge_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verseforge_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Generation pipeline metrics
	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseforge_generations_total",
			Help: "Total number of image generations by outcome",
		},
		[]string{"outcome"},
	)

	ModelDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verseforge_model_duration_seconds",
			Help:    "Image model invocation duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		},
	)

	// Cache metrics
	CacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseforge_cache_ops_total",
			Help: "Cache operations by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	// Rate limiting metrics
	RateLimitChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verseforge_ratelimit_checks_total",
			Help: "Rate limit decisions by tier and outcome",
		},
		[]string{"tier", "allowed"},
	)

	// Cleanup metrics
	CleanupDeletions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verseforge_cleanup_deletions_total",
			Help: "Total number of images removed by retention cleanup",
		},
	)

	BackupsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verseforge_backups_created_total",
			Help: "Total number of pre-cleanup backups written",
		},
	)

	// Storage metrics
	StoredBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verseforge_stored_bytes_total",
			Help: "Total bytes written to blob storage",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		GenerationsTotal,
		ModelDuration,
		CacheOps,
		RateLimitChecks,
		CleanupDeletions,
		BackupsCreated,
		StoredBytes,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
