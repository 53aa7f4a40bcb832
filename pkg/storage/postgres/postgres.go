package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queuekit/queue-analytics/pkg/observability"
	"github.com/queuekit/queue-analytics/pkg/storage"
)

const backendName = "postgres"

// Store reads queue records from the operational tables and persists
// analytics snapshots. Reads go to a replica, writes to the primary.
type Store struct {
	conns   *ConnectionManager
	metrics *observability.Metrics
}

// NewStore connects to the primary and replicas named in config
func NewStore(config storage.Config, metrics *observability.Metrics, log *logrus.Logger) (*Store, error) {
	conns, err := NewConnectionManager(ConnectionConfigFrom(config), log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewStoreFromConnections(conns, metrics), nil
}

// NewStoreFromConnections wraps an existing connection manager
func NewStoreFromConnections(conns *ConnectionManager, metrics *observability.Metrics) *Store {
	return &Store{conns: conns, metrics: metrics}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS queue_analytics_snapshots (
	id UUID PRIMARY KEY,
	shop_id TEXT NOT NULL,
	date_from TIMESTAMPTZ NOT NULL,
	date_to TIMESTAMPTZ NOT NULL,
	filters JSONB NOT NULL DEFAULT '{}'::jsonb,
	analytics JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_queue_analytics_snapshots_shop_created
	ON queue_analytics_snapshots (shop_id, created_at DESC);
`

// EnsureSchema creates the snapshot table when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	_, err := s.conns.Primary().ExecContext(ctx, schemaSQL)
	s.metrics.ObserveStorage("ensure_schema", backendName, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return nil
}

// Connections exposes the underlying connection manager
func (s *Store) Connections() *ConnectionManager {
	return s.conns
}

// Ping checks the primary and replicas
func (s *Store) Ping(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// Close closes every connection
func (s *Store) Close() error {
	return s.conns.Close()
}
