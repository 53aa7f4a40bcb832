// Package storage provides the persistence backends of the queue analytics engine.
//
// # Overview
//
// The analytics package declares the interfaces it consumes (RecordSource,
// CacheStore, SnapshotStore, ShopLister, ReportArchive); this package tree
// implements them:
//
//   - storage.MemoryStore: in-process CacheStore on an expirable LRU
//   - storage/redis: CacheStore shared across replicas
//   - storage/postgres: RecordSource, ShopLister and SnapshotStore over lib/pq
//   - storage/s3: ReportArchive for exported reports
//
// # Configuration
//
// Every backend is configured from the shared Config struct:
//
//	config := storage.DefaultConfig()
//	config.PostgresURL = "postgres://localhost/queues?sslmode=disable"
//	config.CacheBackend = storage.CacheBackendRedis
//	config.RedisURL = "redis://localhost:6379/0"
//
// # Cache Backends
//
// The memory store is the default and needs no infrastructure, but each
// replica keeps its own entries so an invalidation only reaches one process.
// Use Redis when more than one API replica serves the same shops:
//
//	store, err := redis.NewCacheStore(config)
//	cache := analytics.NewCache(store, analytics.CacheConfig{TTL: config.CacheTTL})
//
// Both stores return nil, nil on a miss.
//
// # Testing
//
// The Redis store is tested against miniredis, the Postgres adapters against
// go-sqlmock. Tests tagged integration start a real PostgreSQL or MinIO with
// testcontainers:
//
//	go test -tags integration ./pkg/storage/...
package storage
