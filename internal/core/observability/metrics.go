package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method", "route", "status"},
	)

	storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geometry_store_ops_total",
			Help: "Geometry store operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	storeOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geometry_store_op_duration_seconds",
			Help:    "Latency of geometry store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	corruptGeometries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geometry_store_corrupt_total",
			Help: "Stored geometries that failed to decode.",
		},
	)

	cleanupDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geometry_store_cleanup_deleted_total",
			Help: "Rows removed by unreferenced geometry cleanup.",
		},
	)

	storedGeometries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geometry_store_rows",
			Help: "Number of stored geometries at last count.",
		},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Geometry cache results by outcome.",
		},
		[]string{"outcome"},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Geometry cache failures by operation.",
		},
		[]string{"op"},
	)

	redisOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0002, 2, 14),
		},
		[]string{"op"},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	ingestEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Geometry change events by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	ingestLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_event_duration_seconds",
			Help:    "Time spent applying one geometry change event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	storeOpsTotal.WithLabelValues(op, outcome(err)).Inc()
	storeOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncCorruptGeometry() {
	corruptGeometries.Inc()
}

func AddCleanupDeleted(n int64) {
	if n > 0 {
		cleanupDeleted.Add(float64(n))
	}
}

func SetStoredGeometries(n int64) {
	storedGeometries.Set(float64(n))
}

func IncCacheHit() {
	cacheResults.WithLabelValues("hit").Inc()
}

func IncCacheMiss() {
	cacheResults.WithLabelValues("miss").Inc()
}

func IncCacheError(op string) {
	cacheErrors.WithLabelValues(op).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpsTotal.WithLabelValues(op, outcome(err)).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveIngest(op string, err error, durationSeconds float64) {
	ingestEvents.WithLabelValues(op, outcome(err)).Inc()
	ingestLatencySeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncIngestSkipped(reason string) {
	ingestEvents.WithLabelValues(reason, "skipped").Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
