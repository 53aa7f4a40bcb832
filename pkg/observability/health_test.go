package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok() Pinger { return PingFunc(func(context.Context) error { return nil }) }

func down(msg string) Pinger {
	return PingFunc(func(context.Context) error { return errors.New(msg) })
}

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		checker  *HealthChecker
		expected string
	}{
		{"no dependencies", NewHealthChecker("v1"), StatusHealthy},
		{"all healthy", NewHealthChecker("v1").AddCritical("postgres", ok()).AddOptional("redis", ok()), StatusHealthy},
		{"optional down", NewHealthChecker("v1").AddCritical("postgres", ok()).AddOptional("redis", down("refused")), StatusDegraded},
		{"critical down", NewHealthChecker("v1").AddCritical("postgres", down("refused")).AddOptional("redis", ok()), StatusUnhealthy},
		{"both down", NewHealthChecker("v1").AddCritical("postgres", down("a")).AddOptional("redis", down("b")), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tt.checker.Check(context.Background())
			assert.Equal(t, tt.expected, status.Status)
			assert.Equal(t, "v1", status.Version)
			assert.Len(t, status.Dependencies, len(tt.checker.deps))
		})
	}
}

func TestHealthChecker_DependencyMessage(t *testing.T) {
	status := NewHealthChecker("v1").AddOptional("s3", down("bucket missing")).Check(context.Background())
	require.Contains(t, status.Dependencies, "s3")
	assert.Equal(t, StatusUnhealthy, status.Dependencies["s3"].Status)
	assert.Equal(t, "bucket missing", status.Dependencies["s3"].Message)
}

func TestHealthRoutes(t *testing.T) {
	router := mux.NewRouter()
	RegisterHealthRoutes(router, NewHealthChecker("v1").AddCritical("postgres", down("refused")))

	tests := []struct {
		path string
		code int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusServiceUnavailable},
		{"/health", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var status HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Equal(t, "v1", status.Version)
		})
	}
}
