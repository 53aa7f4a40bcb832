package storage

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// maxMemoryTTL bounds how long the LRU keeps an entry regardless of the
// per-entry TTL passed to Set.
const maxMemoryTTL = 24 * time.Hour

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process byte cache on an expirable LRU
type MemoryStore struct {
	cache *lru.LRU[string, memoryItem]
	now   func() time.Time
}

// NewMemoryStore creates a store holding at most size entries
func NewMemoryStore(size int) *MemoryStore {
	if size < 10 {
		size = 10 // Minimum 10 entries
	}
	return &MemoryStore{
		cache: lru.NewLRU[string, memoryItem](size, nil, maxMemoryTTL),
		now:   time.Now,
	}
}

// Get returns the value or nil on a miss
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	item, ok := s.cache.Get(key)
	if !ok || !item.expiresAt.After(s.now()) {
		return nil, nil
	}
	return item.data, nil
}

// Set stores a copy of value for ttl
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > maxMemoryTTL {
		ttl = maxMemoryTTL
	}
	data := make([]byte, len(value))
	copy(data, value)
	s.cache.Add(key, memoryItem{data: data, expiresAt: s.now().Add(ttl)})
	return nil
}

// Delete removes keys
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		s.cache.Remove(k)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix
func (s *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Remove(k)
		}
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases resources
func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
