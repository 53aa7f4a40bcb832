// Package middleware rate limits the analytics API.
//
// Requests are keyed by the {shopId} route variable, falling back to the
// client IP. Two limiters implement the same Limiter interface:
//
//   - RateLimiter: in-process token bucket per key (golang.org/x/time/rate)
//   - DistributedRateLimiter: fixed-window counter in Redis shared by replicas
//
// Usage:
//
//	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
//		RequestsPerWindow: 600,
//		WindowDuration:    time.Minute,
//		BurstSize:         60,
//	})
//	router.Use(middleware.NewRateLimitMiddleware(limiter).Handler)
//
// Rejected requests get 429 with Retry-After; every response carries
// X-RateLimit-Limit and X-RateLimit-Remaining.
package middleware
