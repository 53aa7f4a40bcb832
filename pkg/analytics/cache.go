package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CacheKeyPrefix prefixes every analytics cache key
const CacheKeyPrefix = "queue_analytics_"

// DefaultCacheTTL is used when an entry is written without an explicit TTL
const DefaultCacheTTL = time.Hour

// CacheStore is a byte-oriented key/TTL store. Get returns nil, nil on a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// KeyStrategy selects how cache keys are derived
type KeyStrategy string

const (
	// KeyPerShop keeps one entry per shop whatever the window
	KeyPerShop KeyStrategy = "per_shop"
	// KeyPerRange keys entries by shop, window and filter hash
	KeyPerRange KeyStrategy = "per_range"
)

// ParseKeyStrategy maps a config value to a strategy
func ParseKeyStrategy(s string) (KeyStrategy, error) {
	switch KeyStrategy(s) {
	case "", KeyPerShop:
		return KeyPerShop, nil
	case KeyPerRange:
		return KeyPerRange, nil
	}
	return "", fmt.Errorf("unknown cache key strategy %q", s)
}

// CacheEntry is the stored form of a cached aggregate
type CacheEntry struct {
	ShopID    string          `json:"shop_id"`
	CacheKey  string          `json:"cache_key"`
	Kind      string          `json:"kind"`
	DateRange DateRange       `json:"date_range"`
	Filters   Filters         `json:"filters"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Decode unmarshals the payload into v
func (e *CacheEntry) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// CacheConfig configures a Cache
type CacheConfig struct {
	TTL      time.Duration
	Strategy KeyStrategy
	// Backend names the store in metrics and logs
	Backend string
}

// Cache stores computed aggregates with a TTL. Entries are overwritten,
// never merged, and concurrent writers for the same key race last-writer-wins.
type Cache struct {
	store    CacheStore
	ttl      time.Duration
	strategy KeyStrategy
	backend  string
	now      func() time.Time
}

// NewCache wraps a store
func NewCache(store CacheStore, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Strategy == "" {
		cfg.Strategy = KeyPerShop
	}
	if cfg.Backend == "" {
		cfg.Backend = "custom"
	}
	return &Cache{
		store:    store,
		ttl:      cfg.TTL,
		strategy: cfg.Strategy,
		backend:  cfg.Backend,
		now:      time.Now,
	}
}

// Backend returns the configured store name
func (c *Cache) Backend() string {
	return c.backend
}

// ShopKey is the per-shop key, always holding the most recent entry
func ShopKey(shopID string) string {
	return CacheKeyPrefix + shopID
}

// RangeKey is the per-range key for a window and filter set
func RangeKey(shopID string, r DateRange, filters Filters) string {
	return fmt.Sprintf("%s%s:%s:%s:%s", CacheKeyPrefix, shopID,
		r.From.UTC().Format(time.RFC3339), r.To.UTC().Format(time.RFC3339), filters.Hash())
}

func rangePrefix(shopID string) string {
	return CacheKeyPrefix + shopID + ":"
}

// Key returns the key a lookup for (shop, range, filters) reads
func (c *Cache) Key(shopID string, r DateRange, filters Filters) string {
	if c.strategy == KeyPerRange {
		return RangeKey(shopID, r, filters)
	}
	return ShopKey(shopID)
}

// Get returns the latest live entry for the shop, or nil on a miss.
// Expired entries are treated as absent.
func (c *Cache) Get(ctx context.Context, shopID string) (*CacheEntry, error) {
	return c.read(ctx, "Cache.Get", ShopKey(shopID), errorContext(shopID, nil, Filters{}))
}

// Lookup returns the live entry a request for (range, filters) should
// consult under the configured strategy, or nil on a miss.
func (c *Cache) Lookup(ctx context.Context, shopID string, r DateRange, filters Filters) (*CacheEntry, error) {
	return c.read(ctx, "Cache.Lookup", c.Key(shopID, r, filters), errorContext(shopID, &r, filters))
}

func (c *Cache) read(ctx context.Context, op, key string, errCtx map[string]interface{}) (*CacheEntry, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		errCtx["key"] = key
		return nil, operationFailed(op, "failed to read cache", errCtx, err)
	}
	if data == nil {
		return nil, nil
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Unreadable entries are a miss; the next Set overwrites them.
		return nil, nil
	}
	if !entry.ExpiresAt.After(c.now()) {
		return nil, nil
	}
	return &entry, nil
}

// Set writes a fresh entry with ExpiresAt = now + ttl. A non-positive ttl
// uses the cache default.
func (c *Cache) Set(ctx context.Context, shopID, kind string, r DateRange, filters Filters, payload interface{}, ttl time.Duration) (*CacheEntry, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, operationFailed("Cache.Set", "failed to encode payload", errorContext(shopID, &r, filters), err)
	}

	now := c.now()
	entry := &CacheEntry{
		ShopID:    shopID,
		CacheKey:  c.Key(shopID, r, filters),
		Kind:      kind,
		DateRange: r,
		Filters:   filters,
		Payload:   raw,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, operationFailed("Cache.Set", "failed to encode entry", errorContext(shopID, &r, filters), err)
	}

	keys := []string{ShopKey(shopID)}
	if c.strategy == KeyPerRange {
		keys = append(keys, entry.CacheKey)
	}
	for _, key := range keys {
		if err := c.store.Set(ctx, key, data, ttl); err != nil {
			return nil, operationFailed("Cache.Set", "failed to write cache", errorContext(shopID, &r, filters), err)
		}
	}
	return entry, nil
}

// Invalidate removes every entry of the shop
func (c *Cache) Invalidate(ctx context.Context, shopID string) error {
	if shopID == "" {
		return validationError("Cache.Invalidate", errorContext(shopID, nil, Filters{}), ErrShopIDRequired)
	}
	if err := c.store.Delete(ctx, ShopKey(shopID)); err != nil {
		return operationFailed("Cache.Invalidate", "failed to delete cache entry", errorContext(shopID, nil, Filters{}), err)
	}
	if c.strategy == KeyPerRange {
		if err := c.store.DeletePrefix(ctx, rangePrefix(shopID)); err != nil {
			return operationFailed("Cache.Invalidate", "failed to delete range entries", errorContext(shopID, nil, Filters{}), err)
		}
	}
	return nil
}

// IsValid reports whether the cached window fully covers [from, to]
func IsValid(entry *CacheEntry, from, to time.Time) bool {
	if entry == nil {
		return false
	}
	return entry.DateRange.Covers(DateRange{From: from, To: to})
}
