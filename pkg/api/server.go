package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/queuekit/queue-analytics/pkg/httputil"
	"github.com/queuekit/queue-analytics/pkg/middleware"
	"github.com/queuekit/queue-analytics/pkg/observability"
)

// ServerOptions configures the API router
type ServerOptions struct {
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	Location    *time.Location
	CORSOrigins []string
	// RateLimiter, when set, limits requests per shop
	RateLimiter middleware.Limiter
	// ServiceName names the otelhttp server spans
	ServiceName string
}

// Server is the queue analytics HTTP API
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer builds the router with the analytics routes and the
// request-id, logging, recovery, metrics, rate limit and CORS middleware.
func NewServer(service AnalyticsService, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "queue-analytics"
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.Use(httputil.RequestIDMiddleware(opts.Logger), httputil.LoggingMiddleware, httputil.RecoveryMiddleware)
	if opts.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	if opts.RateLimiter != nil {
		router.Use(middleware.NewRateLimitMiddleware(opts.RateLimiter).Handler)
	}

	NewAnalyticsHandlers(service, opts.Location).RegisterRoutes(router)

	var handler http.Handler = router
	if len(opts.CORSOrigins) > 0 {
		handler = httputil.CORSMiddleware(opts.CORSOrigins)(handler)
	}
	handler = otelhttp.NewHandler(handler, opts.ServiceName)

	return &Server{router: router, handler: handler}
}

// Router exposes the underlying mux router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
