package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/queuekit/queue-analytics/pkg/analytics"
)

const recordsSQL = `SELECT q.id, q.status, q.created_at, q.completed_at, q.actual_wait_time,
	COALESCE(q.service_id, ''), COALESCE(s.name, ''), COALESCE(q.total_amount, 0)
FROM queues q
LEFT JOIN services s ON s.id = q.service_id
WHERE q.shop_id = $1 AND q.created_at >= $2 AND q.created_at <= $3`

// buildRecordsQuery appends one predicate per non-empty filter
func buildRecordsQuery(shopID string, from, to time.Time, filters analytics.Filters) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(recordsSQL)
	args := []interface{}{shopID, from, to}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		fmt.Fprintf(&b, " AND %s = $%d", column, len(args))
	}
	add("q.employee_id", filters.EmployeeID)
	add("q.service_id", filters.ServiceID)
	add("q.status", filters.Status)
	add("s.department_id", filters.DepartmentID)

	b.WriteString(" ORDER BY q.created_at")
	return b.String(), args
}

// GetRecords returns the queue records of a shop created within [from, to]
func (s *Store) GetRecords(ctx context.Context, shopID string, from, to time.Time, filters analytics.Filters) (records []analytics.QueueRecord, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveStorage("get_records", backendName, time.Since(start), err) }()

	query, args := buildRecordsQuery(shopID, from, to, filters)
	rows, err := s.conns.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec         analytics.QueueRecord
			status      string
			completedAt sql.NullTime
			waitTime    sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &status, &rec.CreatedAt, &completedAt, &waitTime,
			&rec.ServiceID, &rec.ServiceName, &rec.TotalAmount); err != nil {
			return nil, fmt.Errorf("failed to scan queue record: %w", err)
		}
		rec.Status = analytics.QueueStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			rec.CompletedAt = &t
		}
		if waitTime.Valid {
			w := waitTime.Float64
			rec.ActualWaitTime = &w
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue records: %w", err)
	}
	return records, nil
}

// ListShopIDs returns every shop that has queue records
func (s *Store) ListShopIDs(ctx context.Context) (shops []string, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveStorage("list_shops", backendName, time.Since(start), err) }()

	rows, err := s.conns.Replica().QueryContext(ctx, `SELECT DISTINCT shop_id FROM queues ORDER BY shop_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan shop id: %w", err)
		}
		shops = append(shops, id)
	}
	return shops, rows.Err()
}
