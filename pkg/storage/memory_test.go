package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	value := []byte(`{"total":10}`)
	require.NoError(t, s.Set(ctx, "queue_analytics_S1", value, time.Hour))
	value[0] = 'X'

	got, err = s.Get(ctx, "queue_analytics_S1")
	require.NoError(t, err)
	assert.Equal(t, `{"total":10}`, string(got))
	assert.Equal(t, 1, s.cache.Len())
}

func TestMemoryStore_PerEntryTTL(t *testing.T) {
	s := NewMemoryStore(100)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, s.Set(ctx, "long", []byte("b"), time.Hour))

	now = now.Add(2 * time.Minute)

	got, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestMemoryStore_Eviction(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, s.Set(ctx, string(rune('a'+i)), []byte{byte(i)}, time.Hour))
	}
	assert.Equal(t, 10, s.cache.Len())

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_DeleteAndPrefix(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	for _, k := range []string{"queue_analytics_S1", "queue_analytics_S1:a", "queue_analytics_S1:b", "queue_analytics_S10:a"} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), time.Hour))
	}

	require.NoError(t, s.Delete(ctx, "queue_analytics_S1"))
	require.NoError(t, s.DeletePrefix(ctx, "queue_analytics_S1:"))

	for _, k := range []string{"queue_analytics_S1", "queue_analytics_S1:a", "queue_analytics_S1:b"} {
		got, err := s.Get(ctx, k)
		require.NoError(t, err)
		assert.Nil(t, got, k)
	}
	got, err := s.Get(ctx, "queue_analytics_S10:a")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
