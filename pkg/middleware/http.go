package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/queuekit/queue-analytics/pkg/httputil"
	"github.com/queuekit/queue-analytics/pkg/observability"
)

// RateLimitMiddleware limits requests per shop, or per client IP on routes
// without a shop.
type RateLimitMiddleware struct {
	limiter Limiter
	// failOpen admits requests when the limiter errors
	failOpen bool
}

// NewRateLimitMiddleware creates a middleware that fails open on limiter errors
func NewRateLimitMiddleware(limiter Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, failOpen: true}
}

// SetFailOpen controls whether limiter errors admit (true) or reject with 503 (false)
func (m *RateLimitMiddleware) SetFailOpen(enabled bool) {
	m.failOpen = enabled
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)

		d, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).WithField("key", key).Warn("Rate limiter unavailable")
			if !m.failOpen {
				httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
				Error:   "RATE_LIMITED",
				Message: "rate limit exceeded",
				Details: map[string]string{"retry_after": strconv.Itoa(retryAfter)},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if shopID := mux.Vars(r)["shopId"]; shopID != "" {
		return "shop:" + shopID
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
