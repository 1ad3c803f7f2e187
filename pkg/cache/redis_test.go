package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisClient connects to REDIS_TEST_URL; the tests are skipped without it.
func redisClient(t *testing.T) (*Client, redis.UniversalClient) {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return New(rdb), rdb
}

func TestRedisIncrSetsWindow(t *testing.T) {
	c, rdb := redisClient(t)
	ctx := context.Background()
	key := "test:incr:" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(context.Background(), key) })

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	ttl, err := rdb.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisIncrRepairsCounterWithoutTTL(t *testing.T) {
	c, rdb := redisClient(t)
	ctx := context.Background()
	key := "test:incr:" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(context.Background(), key) })

	// a counter whose expiry was never set
	require.NoError(t, rdb.Set(ctx, key, 41, 0).Err())

	n, err := c.Incr(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	ttl, err := rdb.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "counter must expire")
}
