package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/queuekit/queue-analytics/pkg/analytics"
	"github.com/queuekit/queue-analytics/pkg/config"
	"github.com/queuekit/queue-analytics/pkg/middleware"
	"github.com/queuekit/queue-analytics/pkg/observability"
	"github.com/queuekit/queue-analytics/pkg/storage"
	"github.com/queuekit/queue-analytics/pkg/storage/postgres"
	"github.com/queuekit/queue-analytics/pkg/storage/redis"
)

// dbStatsInterval is how often pool stats are exported and replicas checked
const dbStatsInterval = 30 * time.Second

// CacheBackend is a cache store that can be health-checked and closed
type CacheBackend interface {
	analytics.CacheStore
	Ping(ctx context.Context) error
	Close() error
}

// App holds the wired components shared by the API server and the
// snapshotter.
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Location *time.Location
	Store    *postgres.Store
	Cache    CacheBackend
	Service  *analytics.Service
	Health   *observability.HealthChecker

	stopStats context.CancelFunc
	closeOnce sync.Once
}

// New connects to Postgres and the cache backend and assembles the service
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, log *logrus.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	store, err := postgres.NewStore(cfg.Storage, metrics, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}

	cache, err := NewCacheBackend(cfg.Storage)
	if err != nil {
		store.Close()
		return nil, err
	}

	a, err := Assemble(cfg, logger, registry, metrics, store, cache)
	if err != nil {
		cache.Close()
		store.Close()
		return nil, err
	}

	statsCtx, cancel := context.WithCancel(context.Background())
	a.stopStats = cancel
	store.Connections().StartHealthCheckRoutine(statsCtx, dbStatsInterval, metrics.RecordDBStats)
	return a, nil
}

// NewCacheBackend opens the configured cache store
func NewCacheBackend(cfg storage.Config) (CacheBackend, error) {
	switch cfg.CacheBackend {
	case storage.CacheBackendRedis:
		store, err := redis.NewCacheStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis cache: %w", err)
		}
		return store, nil
	case storage.CacheBackendMemory, "":
		return storage.NewMemoryStore(cfg.L1CacheSize), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// Assemble builds the service and health checker on already opened stores
func Assemble(cfg *config.Config, logger *observability.Logger, registry *prometheus.Registry, metrics *observability.Metrics,
	store *postgres.Store, cache CacheBackend) (*App, error) {
	loc, err := cfg.Analytics.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Analytics.Timezone, err)
	}
	strategy, err := analytics.ParseKeyStrategy(cfg.Storage.CacheKeyStrategy)
	if err != nil {
		return nil, err
	}
	backend := cfg.Storage.CacheBackend
	if backend == "" {
		backend = storage.CacheBackendMemory
	}

	analyticsCache := analytics.NewCache(cache, analytics.CacheConfig{
		TTL:      cfg.Storage.CacheTTL,
		Strategy: strategy,
		Backend:  backend,
	})
	service := analytics.NewService(store, analyticsCache,
		analytics.WithMetrics(metrics),
		analytics.WithLogger(logger),
		analytics.WithLocation(loc),
		analytics.WithSnapshotStore(store),
		analytics.WithCacheTTL(cfg.Storage.CacheTTL),
	)

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion).
		AddCritical("postgres", store)
	if backend == storage.CacheBackendRedis {
		health.AddOptional("redis", cache)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  metrics,
		Location: loc,
		Store:    store,
		Cache:    cache,
		Service:  service,
		Health:   health,
	}, nil
}

// RateLimiter returns the per-shop limiter for the API, shared through Redis
// when Redis is the cache backend. It returns nil when limiting is disabled.
func (a *App) RateLimiter(ctx context.Context) middleware.Limiter {
	if a.Config.Server.RateLimitPerMinute == 0 {
		return nil
	}
	cfg := middleware.RateLimitConfig{
		RequestsPerWindow: a.Config.Server.RateLimitPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         a.Config.Server.RateLimitBurst,
	}
	if rc, ok := a.Cache.(*redis.CacheStore); ok {
		return middleware.NewDistributedRateLimiter(rc.GetClient(), cfg, "ratelimit:queue_analytics")
	}
	limiter := middleware.NewRateLimiter(cfg)
	limiter.StartCleanup(ctx)
	return limiter
}

// HealthServer serves the health probes and, when enabled, /metrics on the
// health port.
func (a *App) HealthServer() *http.Server {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, a.Health)
	if a.Config.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(a.Registry)).Methods(http.MethodGet)
	}
	return &http.Server{
		Addr:         net.JoinHostPort(a.Config.Server.Host, a.Config.Server.HealthPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Close stops background routines and releases the stores
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		if a.stopStats != nil {
			a.stopStats()
		}
		if cerr := a.Cache.Close(); cerr != nil {
			err = fmt.Errorf("cache: %w", cerr)
		}
		if cerr := a.Store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("postgres: %w", cerr)
		}
	})
	return err
}
