//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/queuekit/queue-analytics/pkg/analytics"
	"github.com/queuekit/queue-analytics/pkg/storage"
)

const fixtureSQL = `
CREATE TABLE services (id TEXT PRIMARY KEY, name TEXT, department_id TEXT);
CREATE TABLE queues (
	id TEXT PRIMARY KEY,
	shop_id TEXT NOT NULL,
	employee_id TEXT,
	service_id TEXT REFERENCES services(id),
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	actual_wait_time DOUBLE PRECISION,
	total_amount NUMERIC(12,2)
);
INSERT INTO services VALUES ('cut', 'Haircut', 'D1'), ('color', 'Coloring', 'D2');
INSERT INTO queues VALUES
	('q1', 'S1', 'E1', 'cut',   'completed', '2024-01-02T09:00:00Z', '2024-01-02T09:40:00Z', 10, 25.00),
	('q2', 'S1', 'E2', 'color', 'completed', '2024-01-02T10:00:00Z', '2024-01-02T11:00:00Z', 20, 80.00),
	('q3', 'S1', 'E1', 'cut',   'cancelled', '2024-01-03T09:00:00Z', NULL, NULL, NULL),
	('q4', 'S2', 'E3', NULL,    'waiting',   '2024-01-03T09:00:00Z', NULL, NULL, NULL);
`

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("queues_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.PostgresURL = connStr
	store, err := NewStore(cfg, nil, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Connections().Primary().ExecContext(ctx, fixtureSQL)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestStoreIntegration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	t.Run("records", func(t *testing.T) {
		records, err := store.GetRecords(ctx, "S1", from, to, analytics.Filters{})
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Haircut", records[0].ServiceName)
		assert.Equal(t, 25.0, records[0].TotalAmount)
		assert.Nil(t, records[2].CompletedAt)

		records, err = store.GetRecords(ctx, "S1", from, to, analytics.Filters{DepartmentID: "D2"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "q2", records[0].ID)
	})

	t.Run("shops", func(t *testing.T) {
		shops, err := store.ListShopIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"S1", "S2"}, shops)
	})

	t.Run("analytics over postgres", func(t *testing.T) {
		svc := analytics.NewService(store, analytics.NewCache(storage.NewMemoryStore(100), analytics.CacheConfig{}),
			analytics.WithSnapshotStore(store))

		entity, err := svc.GetQueueAnalytics(ctx, "S1", from, to, analytics.Filters{})
		require.NoError(t, err)
		assert.Equal(t, 3, entity.TotalQueues)
		assert.Equal(t, 2, entity.CompletedQueues)
		assert.Equal(t, 15.0, entity.AverageWaitTime)

		_, err = svc.CaptureSnapshot(ctx, "S1", analytics.DateRange{From: from, To: to}, analytics.Filters{})
		require.NoError(t, err)

		page, err := svc.GetPaginatedQueueAnalyticsHistory(ctx, analytics.HistoryParams{ShopID: "S1", Page: 1, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, 3, page.Data[0].Analytics.TotalQueues)
	})
}
