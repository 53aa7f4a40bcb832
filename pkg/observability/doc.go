// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup, health probes and graceful shutdown for the queue
// analytics binaries.
//
// # Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel("info"), os.Stdout)
//	logger.WithField("shop_id", shopID).Info("analytics cache invalidated")
//
// FromContext picks up the request and shop IDs placed on the context by
// the HTTP layer.
//
// # Metrics
//
// Metrics methods are safe on a nil *Metrics so library code can record
// unconditionally:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveComputation(analytics.AggregateOverall, len(records), elapsed, err)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// When OpenTelemetry is enabled, AttachOTel mirrors computation and cache
// counters to the OTLP meter.
//
// # Health
//
//	checker := observability.NewHealthChecker(version).
//		AddCritical("postgres", store).
//		AddOptional("redis", cacheStore)
//	observability.RegisterHealthRoutes(router, checker)
package observability
