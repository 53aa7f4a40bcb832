// Package analytics turns raw per-shop queue records into aggregate statistics
// and serves them through a TTL cache.
//
// # Overview
//
// A Calculator fetches records from a RecordSource and produces four aggregates:
//   - Overall: status counts, completion/cancellation/no-show rates, average times
//   - Time: average, median, min and max of wait and service times
//   - Peak hours: each hour of the day classified as peak or quiet, with staffing advice
//   - Services: per-service stats ranked by popularity score
//
// The Service wraps the calculator with a read-through Cache:
//
//	Lookup(key) -> miss -> Compute -> Set(key) -> return
//
// Compute never writes; Set is a separate step.
//
// # Usage Example
//
//	cache := analytics.NewCache(storage.NewMemoryStore(1000), analytics.CacheConfig{TTL: time.Hour})
//	svc := analytics.NewService(records, cache, analytics.WithMetrics(metrics))
//
//	stats, err := svc.GetQueueAnalytics(ctx, "shop-1", from, to, analytics.Filters{})
//	if analytics.IsNotFound(err) {
//		// no data for the window yet
//	}
//
// # Cache Keys
//
// With KeyPerShop every shop has a single entry; a cached window that covers
// the requested one is served (see IsValid). KeyPerRange keys entries by
// window and filter hash and still mirrors the latest entry under the shop
// key for GetCachedQueueAnalytics.
//
// # Errors
//
// Every failure is an *Error carrying a kind (VALIDATION_ERROR, NOT_FOUND,
// OPERATION_FAILED, UNKNOWN), the operation name and the input context.
// Cache misses are reported as nil results, not errors.
//
// # Related Packages
//
//   - pkg/storage: cache stores, record source and snapshot persistence
//   - pkg/observability: metrics and logging
package analytics
