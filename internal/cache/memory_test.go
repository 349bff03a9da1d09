package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverMind-orz/identity-kit/internal/cache"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()

	require.NoError(t, m.Set(ctx, "user:t1:u1", []byte(`{"id":"u1"}`), time.Hour))

	value, ok, err := m.Get(ctx, "user:t1:u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"id":"u1"}`), value)
}

func TestMemoryMiss(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()

	value, ok, err := m.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()

	require.NoError(t, m.Set(ctx, "key", []byte("value"), 0))
	require.NoError(t, m.Delete(ctx, "key"))

	_, ok, err := m.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting an absent key is fine
	assert.NoError(t, m.Delete(ctx, "key"))
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()

	require.NoError(t, m.Set(ctx, "key", []byte("value"), 0))

	removed := m.Sweep(time.Now().Add(24 * time.Hour))
	assert.Equal(t, 0, removed)

	_, ok, err := m.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()

	require.NoError(t, m.Set(ctx, "short", []byte("value"), 10*time.Millisecond))

	time.Sleep(50 * time.Millisecond)

	_, ok, err := m.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 2*time.Hour))
	require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))

	removed := m.Sweep(time.Now().Add(90 * time.Minute))
	assert.Equal(t, 1, removed)

	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)

	_, ok, _ = m.Get(ctx, "b")
	assert.True(t, ok)

	_, ok, _ = m.Get(ctx, "c")
	assert.True(t, ok)
}
