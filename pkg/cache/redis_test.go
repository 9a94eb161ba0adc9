package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedis(client, nil)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedis_PutGet(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, CategoryScore, "v1", entry{Name: "a", Score: 7.5}))
	assert.True(t, mr.Exists("buzz:score:v1"))
	assert.Equal(t, ScoreTTL, mr.TTL("buzz:score:v1"))

	var got entry
	ok, err := c.Get(ctx, CategoryScore, "v1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry{Name: "a", Score: 7.5}, got)
}

func TestRedis_MissAndExpiry(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()

	ok, err := c.Get(ctx, CategoryChannel, "nope", &entry{})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, CategoryChannel, "ch", entry{Name: "c"}))
	assert.Equal(t, ChannelTTL, mr.TTL("buzz:channel:ch"))

	mr.FastForward(ChannelTTL + time.Second)
	ok, err = c.Get(ctx, CategoryChannel, "ch", &entry{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Invalidate(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, CategoryComments, "v", entry{}))
	require.NoError(t, c.Invalidate(ctx, CategoryComments, "v"))
	assert.False(t, mr.Exists("buzz:comments:v"))
}

func TestRedis_CorruptEntry(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("buzz:score:bad", "{not json"))
	_, err := c.Get(ctx, CategoryScore, "bad", &entry{})
	assert.Error(t, err)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := DialRedis(ctx, "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put(ctx, CategoryScore, "x", entry{Score: 1}))

	_, err = DialRedis(ctx, "not a url", nil)
	assert.Error(t, err)
}
