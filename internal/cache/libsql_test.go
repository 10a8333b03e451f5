package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *LibSQLCache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	c, err := NewLibSQLCache("file:"+dbPath, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLibSQLCacheRoundTrip(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()
	args := map[string]any{"expression": "a + b", "data": map[string]any{"a": 1, "b": 2}}

	_, ok, err := c.Get(ctx, "expr.eval", args)
	require.NoError(t, err)
	assert.False(t, ok, "fresh cache should miss")

	require.NoError(t, c.Set(ctx, "expr.eval", args, map[string]any{"result": 3}))

	v, ok, err := c.Get(ctx, "expr.eval", args)
	require.NoError(t, err)
	require.True(t, ok)
	m, isMap := v.(map[string]any)
	require.True(t, isMap, "expected map result, got %T", v)
	// JSON round-trip turns numbers into float64.
	assert.Equal(t, float64(3), m["result"])
}

func TestLibSQLCacheUpsert(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()
	args := map[string]any{"k": "v"}

	require.NoError(t, c.Set(ctx, "t", args, "first"))
	require.NoError(t, c.Set(ctx, "t", args, "second"))

	v, ok, err := c.Get(ctx, "t", args)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestLibSQLCacheTTLExpiry(t *testing.T) {
	c := newTestCache(t, 10*time.Millisecond)
	ctx := context.Background()
	args := map[string]any{"k": 1}

	require.NoError(t, c.Set(ctx, "t", args, "short-lived"))
	time.Sleep(30 * time.Millisecond)

	_, ok, err := c.Get(ctx, "t", args)
	require.NoError(t, err)
	assert.False(t, ok, "expired entry should miss")

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLibSQLCachePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	args := map[string]any{"q": "ethanol"}

	c1, err := NewLibSQLCache("file:"+dbPath, 0)
	require.NoError(t, err)
	require.NoError(t, c1.Set(ctx, "lookup", args, "CCO"))
	require.NoError(t, c1.Close())

	c2, err := NewLibSQLCache("file:"+dbPath, 0)
	require.NoError(t, err)
	defer c2.Close()

	v, ok, err := c2.Get(ctx, "lookup", args)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CCO", v)
}
