package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/queuekit/queue-analytics/pkg/analytics"
)

const insertSnapshotSQL = `INSERT INTO queue_analytics_snapshots
	(id, shop_id, date_from, date_to, filters, analytics, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectSnapshotsSQL = `SELECT id, shop_id, date_from, date_to, filters, analytics, created_at
FROM queue_analytics_snapshots
WHERE shop_id = $1`

// SaveSnapshot persists a snapshot on the primary
func (s *Store) SaveSnapshot(ctx context.Context, snapshot *analytics.Snapshot) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveStorage("save_snapshot", backendName, time.Since(start), err) }()

	filters, err := json.Marshal(snapshot.Filters)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot filters: %w", err)
	}
	body, err := json.Marshal(snapshot.Analytics)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot analytics: %w", err)
	}

	_, err = s.conns.Primary().ExecContext(ctx, insertSnapshotSQL,
		snapshot.ID, snapshot.ShopID, snapshot.DateRange.From, snapshot.DateRange.To,
		filters, body, snapshot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func buildSnapshotsQuery(shopID string, query analytics.SnapshotQuery) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString(selectSnapshotsSQL)
	args := []interface{}{shopID}

	if query.Range != nil {
		args = append(args, query.Range.From)
		fmt.Fprintf(&b, " AND date_from >= $%d", len(args))
		args = append(args, query.Range.To)
		fmt.Fprintf(&b, " AND date_to <= $%d", len(args))
	}
	if !query.Filters.IsZero() {
		raw, err := json.Marshal(query.Filters)
		if err != nil {
			return "", nil, err
		}
		args = append(args, string(raw))
		fmt.Fprintf(&b, " AND filters = $%d::jsonb", len(args))
	}

	b.WriteString(" ORDER BY created_at DESC")
	return b.String(), args, nil
}

// ListSnapshots returns a shop's snapshots, newest first
func (s *Store) ListSnapshots(ctx context.Context, shopID string, query analytics.SnapshotQuery) (snapshots []analytics.Snapshot, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveStorage("list_snapshots", backendName, time.Since(start), err) }()

	q, args, err := buildSnapshotsQuery(shopID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot filters: %w", err)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			snap    analytics.Snapshot
			filters []byte
			body    []byte
		)
		if err := rows.Scan(&snap.ID, &snap.ShopID, &snap.DateRange.From, &snap.DateRange.To,
			&filters, &body, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if len(filters) > 0 {
			if err := json.Unmarshal(filters, &snap.Filters); err != nil {
				return nil, fmt.Errorf("failed to decode snapshot %s filters: %w", snap.ID, err)
			}
		}
		if err := json.Unmarshal(body, &snap.Analytics); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", snap.ID, err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snapshots, nil
}
