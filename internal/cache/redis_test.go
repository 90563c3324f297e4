// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdhq/trackd/internal/domain"
)

func setupRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCache(client)
}

func TestRedisCacheSetGetDelete(t *testing.T) {
	_, c := setupRedisCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, NamespaceSession, "k")
	assert.False(t, ok)

	c.Set(ctx, NamespaceSession, "k", []byte(`{"id":"sess-1"}`), time.Minute)
	value, ok := c.Get(ctx, NamespaceSession, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"sess-1"}`, string(value))

	c.Delete(ctx, NamespaceSession, "k")
	_, ok = c.Get(ctx, NamespaceSession, "k")
	assert.False(t, ok)
}

func TestRedisCacheNamespacesAreIsolated(t *testing.T) {
	_, c := setupRedisCache(t)
	ctx := context.Background()

	c.Set(ctx, NamespaceSession, "k", []byte("a"), time.Minute)
	_, ok := c.Get(ctx, NamespaceSource, "k")
	assert.False(t, ok)
}

func TestRedisCacheTTLExpires(t *testing.T) {
	mr, c := setupRedisCache(t)
	ctx := context.Background()

	c.Set(ctx, NamespaceSource, "k", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)

	_, ok := c.Get(ctx, NamespaceSource, "k")
	assert.False(t, ok)
}

func TestThroughCascadesToLoaderOnMiss(t *testing.T) {
	_, c := setupRedisCache(t)
	ctx := context.Background()
	loads := 0

	load := func(context.Context) (*domain.Session, error) {
		loads++
		return domain.NewSession("sess-1"), nil
	}

	session, err := Through(ctx, c, NamespaceSession, "sess-1", time.Minute, load)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, loads)

	// Second read hits the cache.
	session, err = Through(ctx, c, NamespaceSession, "sess-1", time.Minute, load)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "sess-1", session.ID)
	assert.Equal(t, 1, loads)
}

func TestThroughNeverCachesNilResults(t *testing.T) {
	_, c := setupRedisCache(t)
	ctx := context.Background()
	loads := 0

	load := func(context.Context) (*domain.Session, error) {
		loads++
		return nil, nil
	}

	session, err := Through(ctx, c, NamespaceSession, "missing", time.Minute, load)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, err = Through(ctx, c, NamespaceSession, "missing", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads, "a miss must reach the loader again")
}

func TestThroughPropagatesLoaderErrors(t *testing.T) {
	_, c := setupRedisCache(t)
	wantErr := errors.New("boom")

	_, err := Through(context.Background(), c, NamespaceSession, "k", time.Minute,
		func(context.Context) (*domain.Session, error) { return nil, wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestNopCacheNeverHits(t *testing.T) {
	var c Nop
	ctx := context.Background()
	c.Set(ctx, NamespaceFlow, "k", []byte("v"), time.Minute)
	_, ok := c.Get(ctx, NamespaceFlow, "k")
	assert.False(t, ok)
}
