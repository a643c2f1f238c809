package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T, prefix string, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, prefix, ttl), mr
}

func TestRedisCacheSetGetInvalidate(t *testing.T) {
	c, _ := newTestRedisCache(t, "stockledger:summary", time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "stock")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "stock", []byte(`{"totalStock":"10"}`), gen))
	require.NoError(t, c.Set(ctx, "agents", []byte(`[]`), gen))

	val, ok, err := c.Get(ctx, "stock")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"totalStock":"10"}`, string(val))

	require.NoError(t, c.Invalidate(ctx))

	for _, k := range []string{"stock", "agents"} {
		_, ok, err = c.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func TestRedisCacheKeyLayout(t *testing.T) {
	for _, prefix := range []string{"stockledger:summary", "stockledger:summary:"} {
		t.Run(prefix, func(t *testing.T) {
			c, mr := newTestRedisCache(t, prefix, time.Minute)
			ctx := context.Background()

			require.NoError(t, c.Set(ctx, "stock", []byte("{}"), 0))

			assert.True(t, mr.Exists("stockledger:summary:stock"))
			assert.False(t, mr.Exists("stockledger:summary::stock"))
			members, err := mr.Members("stockledger:summary:keys")
			require.NoError(t, err)
			assert.Equal(t, []string{"stockledger:summary:stock"}, members)
		})
	}
}

func TestRedisCacheDropsWritesFromBeforeInvalidate(t *testing.T) {
	c, mr := newTestRedisCache(t, "stockledger:summary", time.Minute)
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)

	// A mutation lands while the summary is being computed.
	require.NoError(t, c.Invalidate(ctx))

	require.NoError(t, c.Set(ctx, "stock", []byte("{}"), gen))
	_, ok, err := c.Get(ctx, "stock")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("stockledger:summary:stock"))

	fresh, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, fresh)
	require.NoError(t, c.Set(ctx, "stock", []byte("{}"), fresh))
	_, ok, err = c.Get(ctx, "stock")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCacheEntriesExpire(t *testing.T) {
	c, mr := newTestRedisCache(t, "stockledger:summary", 30*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stock", []byte("{}"), 0))
	assert.Equal(t, 30*time.Second, mr.TTL("stockledger:summary:stock"))

	mr.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, "stock")
	require.NoError(t, err)
	assert.False(t, ok)
}
