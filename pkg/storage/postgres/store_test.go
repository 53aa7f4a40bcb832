package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuekit/queue-analytics/pkg/analytics"
	"github.com/queuekit/queue-analytics/pkg/observability"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	cm := NewConnectionManagerFromDB(db, nil, ConnectionConfig{}, quietLogger())
	return NewStoreFromConnections(cm, nil), mock
}

var (
	jan1  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan31 = time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
)

func TestBuildRecordsQuery(t *testing.T) {
	q, args := buildRecordsQuery("S1", jan1, jan31, analytics.Filters{})
	assert.NotContains(t, q, "$4")
	assert.Len(t, args, 3)

	q, args = buildRecordsQuery("S1", jan1, jan31, analytics.Filters{ServiceID: "cut", DepartmentID: "D1"})
	assert.Contains(t, q, "AND q.service_id = $4 AND s.department_id = $5 ORDER BY q.created_at")
	assert.Equal(t, []interface{}{"S1", jan1, jan31, "cut", "D1"}, args)
}

func TestStore_GetRecords(t *testing.T) {
	store, mock := newMockStore(t)
	done := jan1.Add(30 * time.Minute)

	rows := sqlmock.NewRows([]string{"id", "status", "created_at", "completed_at", "actual_wait_time", "service_id", "name", "total_amount"}).
		AddRow("q1", "completed", jan1, done, 12.5, "cut", "Haircut", 25.0).
		AddRow("q2", "waiting", jan1.Add(time.Hour), nil, nil, "", "", 0.0)

	mock.ExpectQuery(regexp.QuoteMeta("FROM queues q")).
		WithArgs("S1", jan1, jan31, "E1").
		WillReturnRows(rows)

	records, err := store.GetRecords(context.Background(), "S1", jan1, jan31, analytics.Filters{EmployeeID: "E1"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, analytics.StatusCompleted, records[0].Status)
	require.NotNil(t, records[0].CompletedAt)
	assert.Equal(t, done, *records[0].CompletedAt)
	require.NotNil(t, records[0].ActualWaitTime)
	assert.Equal(t, 12.5, *records[0].ActualWaitTime)
	assert.Equal(t, "Haircut", records[0].ServiceName)
	assert.Equal(t, 25.0, records[0].TotalAmount)

	assert.Nil(t, records[1].CompletedAt)
	assert.Nil(t, records[1].ActualWaitTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetRecords_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := NewStoreFromConnections(NewConnectionManagerFromDB(db, nil, ConnectionConfig{}, quietLogger()), metrics)

	mock.ExpectQuery("FROM queues q").WillReturnError(errors.New("relation \"queues\" does not exist"))

	_, err := store.GetRecords(context.Background(), "S1", jan1, jan31, analytics.Filters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query queue records")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StorageErrorsTotal.WithLabelValues("get_records", "postgres")))
}

func TestStore_ListShopIDs(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT shop_id FROM queues ORDER BY shop_id")).
		WillReturnRows(sqlmock.NewRows([]string{"shop_id"}).AddRow("S1").AddRow("S2"))

	shops, err := store.ListShopIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, shops)
}

func TestStore_EnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS queue_analytics_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func testSnapshot() *analytics.Snapshot {
	return &analytics.Snapshot{
		ID:        "0b7c6f4e-8f43-4a4e-9d0c-3f1f2f0c6a11",
		ShopID:    "S1",
		DateRange: analytics.DateRange{From: jan1, To: jan31},
		Filters:   analytics.Filters{ServiceID: "cut"},
		Analytics: analytics.QueueAnalyticsEntity{TotalQueues: 10, CompletedQueues: 6},
		CreatedAt: jan31,
	}
}

func TestStore_SaveSnapshot(t *testing.T) {
	store, mock := newMockStore(t)
	snap := testSnapshot()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_analytics_snapshots")).
		WithArgs(snap.ID, "S1", jan1, jan31, []byte(`{"service_id":"cut"}`), sqlmock.AnyArg(), jan31).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveSnapshot(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildSnapshotsQuery(t *testing.T) {
	q, args, err := buildSnapshotsQuery("S1", analytics.SnapshotQuery{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"S1"}, args)
	assert.Contains(t, q, "WHERE shop_id = $1 ORDER BY created_at DESC")

	r := analytics.DateRange{From: jan1, To: jan31}
	q, args, err = buildSnapshotsQuery("S1", analytics.SnapshotQuery{Range: &r, Filters: analytics.Filters{Status: "completed"}})
	require.NoError(t, err)
	assert.Contains(t, q, "AND date_from >= $2 AND date_to <= $3 AND filters = $4::jsonb")
	assert.Equal(t, `{"status":"completed"}`, args[3])
}

func TestStore_ListSnapshots(t *testing.T) {
	store, mock := newMockStore(t)
	snap := testSnapshot()
	body, err := json.Marshal(snap.Analytics)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM queue_analytics_snapshots")).
		WithArgs("S1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "shop_id", "date_from", "date_to", "filters", "analytics", "created_at"}).
			AddRow(snap.ID, "S1", jan1, jan31, []byte(`{"service_id":"cut"}`), body, jan31))

	snaps, err := store.ListSnapshots(context.Background(), "S1", analytics.SnapshotQuery{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, *snap, snaps[0])
}

func TestStore_ListSnapshots_CorruptRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM queue_analytics_snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"id", "shop_id", "date_from", "date_to", "filters", "analytics", "created_at"}).
			AddRow("x", "S1", jan1, jan31, []byte(`{}`), []byte(`not json`), jan31))

	_, err := store.ListSnapshots(context.Background(), "S1", analytics.SnapshotQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode snapshot x")
}
