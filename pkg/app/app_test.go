package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuekit/queue-analytics/pkg/analytics"
	"github.com/queuekit/queue-analytics/pkg/config"
	"github.com/queuekit/queue-analytics/pkg/middleware"
	"github.com/queuekit/queue-analytics/pkg/observability"
	"github.com/queuekit/queue-analytics/pkg/storage"
	"github.com/queuekit/queue-analytics/pkg/storage/postgres"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.PostgresURL = "postgres://localhost/queues?sslmode=disable"
	cfg.Analytics.Timezone = "UTC"
	return cfg
}

func quietLogrus() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newMockStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	conns := postgres.NewConnectionManagerFromDB(db, nil, postgres.ConnectionConfig{}, quietLogrus())
	return postgres.NewStoreFromConnections(conns, nil), mock
}

func assemble(t *testing.T, cfg *config.Config) (*App, sqlmock.Sqlmock) {
	t.Helper()
	store, mock := newMockStore(t)
	registry := prometheus.NewRegistry()
	a, err := Assemble(cfg, observability.NewLogger(observability.ErrorLevel, io.Discard), registry,
		observability.NewMetrics(registry), store, storage.NewMemoryStore(100))
	require.NoError(t, err)
	return a, mock
}

func TestNewCacheBackend(t *testing.T) {
	mem, err := NewCacheBackend(storage.Config{CacheBackend: storage.CacheBackendMemory, L1CacheSize: 50})
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, mem)

	mr := miniredis.RunT(t)
	rc, err := NewCacheBackend(storage.Config{CacheBackend: storage.CacheBackendRedis, RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, rc.Ping(context.Background()))
	require.NoError(t, rc.Close())

	_, err = NewCacheBackend(storage.Config{CacheBackend: "memcached"})
	assert.Error(t, err)
}

func TestAssemble_ServesAnalytics(t *testing.T) {
	a, mock := assemble(t, testConfig())
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "status", "created_at", "completed_at", "actual_wait_time", "service_id", "name", "total_amount"}).
		AddRow("q1", "completed", from.Add(time.Hour), from.Add(90*time.Minute), 10.0, "cut", "Haircut", 20.0).
		AddRow("q2", "cancelled", from.Add(2*time.Hour), nil, nil, "cut", "Haircut", 0.0)
	mock.ExpectQuery("FROM queues q").WithArgs("S1", from, to).WillReturnRows(rows)

	ctx := context.Background()
	result, err := a.Service.GetQueueAnalytics(ctx, "S1", from, to, analytics.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalQueues)
	assert.Equal(t, 50.0, result.CompletionRate)

	// Second call is served from the memory cache without touching Postgres
	again, err := a.Service.GetQueueAnalytics(ctx, "S1", from, to, analytics.Filters{})
	require.NoError(t, err)
	assert.Equal(t, result.TotalQueues, again.TotalQueues)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssemble_InvalidConfig(t *testing.T) {
	store, _ := newMockStore(t)
	registry := prometheus.NewRegistry()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	cfg := testConfig()
	cfg.Analytics.Timezone = "Mars/Olympus"
	_, err := Assemble(cfg, logger, registry, nil, store, storage.NewMemoryStore(10))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Storage.CacheKeyStrategy = "per_moon"
	_, err = Assemble(cfg, logger, registry, nil, store, storage.NewMemoryStore(10))
	assert.Error(t, err)
}

func TestHealthServer(t *testing.T) {
	a, mock := assemble(t, testConfig())
	srv := a.HealthServer()
	assert.Equal(t, "0.0.0.0:9090", srv.Addr)

	mock.ExpectPing()
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var status observability.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, observability.StatusHealthy, status.Status)
	assert.Contains(t, status.Dependencies, "postgres")

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "queue_analytics_")
}

func TestHealthServer_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.MetricsEnabled = false
	a, _ := assemble(t, cfg)

	w := httptest.NewRecorder()
	a.HealthServer().Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApp_Close(t *testing.T) {
	a, mock := assemble(t, testConfig())
	mock.ExpectClose()

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLogrus(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogrus(observability.DebugLevel).GetLevel())
	assert.Equal(t, logrus.WarnLevel, NewLogrus(observability.WarnLevel).GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogrus(observability.InfoLevel).GetLevel())
}

func TestApp_RateLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitPerMinute = 0
	a, _ := assemble(t, cfg)
	assert.Nil(t, a.RateLimiter(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Config.Server.RateLimitPerMinute = 60
	assert.IsType(t, &middleware.RateLimiter{}, a.RateLimiter(ctx))

	mr := miniredis.RunT(t)
	rc, err := NewCacheBackend(storage.Config{CacheBackend: storage.CacheBackendRedis, RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()
	a.Cache = rc
	assert.IsType(t, &middleware.DistributedRateLimiter{}, a.RateLimiter(ctx))
}
