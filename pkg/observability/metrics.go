package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageErrorsTotal       *prometheus.CounterVec

	// Analytics metrics
	ComputationsTotal   *prometheus.CounterVec
	ComputationDuration *prometheus.HistogramVec
	RecordsProcessed    *prometheus.CounterVec
	ExportsTotal        *prometheus.CounterVec
	SnapshotsTotal      *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// otel mirrors analytics counters to the OTLP meter when attached
	otel *OTelInstruments
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queue_analytics_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queue_analytics_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queue_analytics_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Storage metrics
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queue_analytics_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"operation", "backend"},
		),

		// Analytics metrics
		ComputationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_computations_total",
				Help: "Total number of aggregate computations",
			},
			[]string{"aggregate", "status"},
		),
		ComputationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queue_analytics_computation_duration_seconds",
				Help:    "Aggregate computation duration in seconds, record fetch included",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"aggregate"},
		),
		RecordsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_records_processed_total",
				Help: "Total number of queue records fed into aggregates",
			},
			[]string{"aggregate"},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_exports_total",
				Help: "Total number of report exports",
			},
			[]string{"format", "status"},
		),
		SnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_snapshots_total",
				Help: "Total number of history snapshots captured",
			},
			[]string{"status"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type", "key_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type", "key_type"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_analytics_cache_invalidations_total",
				Help: "Total number of cache invalidations",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queue_analytics_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queue_analytics_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queue_analytics_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queue_analytics_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageErrorsTotal,
		m.ComputationsTotal,
		m.ComputationDuration,
		m.RecordsProcessed,
		m.ExportsTotal,
		m.SnapshotsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
	)

	return m
}

// AttachOTel mirrors computation and cache counters to OTel instruments
func (m *Metrics) AttachOTel(instruments *OTelInstruments) {
	if m == nil {
		return
	}
	m.otel = instruments
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveComputation records one aggregate computation. Safe on a nil receiver.
func (m *Metrics) ObserveComputation(aggregate string, records int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.otel.recordComputation(aggregate, duration, err)
	m.ComputationsTotal.WithLabelValues(aggregate, statusLabel(err)).Inc()
	m.ComputationDuration.WithLabelValues(aggregate).Observe(duration.Seconds())
	if err == nil {
		m.RecordsProcessed.WithLabelValues(aggregate).Add(float64(records))
	}
}

// ObserveStorage records a storage round trip. Safe on a nil receiver.
func (m *Metrics) ObserveStorage(operation, backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, statusLabel(err)).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
	if err != nil {
		m.StorageErrorsTotal.WithLabelValues(operation, backend).Inc()
	}
}

// CacheHit counts a cache hit. Safe on a nil receiver.
func (m *Metrics) CacheHit(cacheType, keyType string) {
	if m == nil {
		return
	}
	m.otel.recordCacheLookup(cacheType, true)
	m.CacheHitsTotal.WithLabelValues(cacheType, keyType).Inc()
}

// CacheMiss counts a cache miss. Safe on a nil receiver.
func (m *Metrics) CacheMiss(cacheType, keyType string) {
	if m == nil {
		return
	}
	m.otel.recordCacheLookup(cacheType, false)
	m.CacheMissesTotal.WithLabelValues(cacheType, keyType).Inc()
}

// CacheInvalidated counts an invalidation. Safe on a nil receiver.
func (m *Metrics) CacheInvalidated(cacheType string) {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(cacheType).Inc()
}

// ObserveExport counts an export attempt. Safe on a nil receiver.
func (m *Metrics) ObserveExport(format string, err error) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format, statusLabel(err)).Inc()
}

// ObserveSnapshot counts a snapshot capture. Safe on a nil receiver.
func (m *Metrics) ObserveSnapshot(err error) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(statusLabel(err)).Inc()
}

// RecordDBStats copies connection pool stats into the database gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the mux route template, or the raw path outside a router
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
