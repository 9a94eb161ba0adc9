package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestMemory_PutGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(nil, clockwork.NewFakeClock())

	require.NoError(t, c.Put(ctx, CategoryScore, "v1", entry{Name: "a", Score: 42}))

	var got entry
	ok, err := c.Get(ctx, CategoryScore, "v1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry{Name: "a", Score: 42}, got)

	ok, err = c.Get(ctx, CategoryChannel, "v1", &got)
	require.NoError(t, err)
	assert.False(t, ok, "categories must not share keys")
}

func TestMemory_ExpiryPerCategory(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewMemory(nil, clock)

	require.NoError(t, c.Put(ctx, CategoryScore, "k", entry{Name: "score"}))
	require.NoError(t, c.Put(ctx, CategoryChannel, "k", entry{Name: "channel"}))

	clock.Advance(ScoreTTL - time.Second)
	var got entry
	ok, _ := c.Get(ctx, CategoryScore, "k", &got)
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, _ = c.Get(ctx, CategoryScore, "k", &got)
	assert.False(t, ok, "entry at its TTL is a miss")

	ok, _ = c.Get(ctx, CategoryChannel, "k", &got)
	assert.True(t, ok)
	assert.Equal(t, "channel", got.Name)

	clock.Advance(ChannelTTL)
	ok, _ = c.Get(ctx, CategoryChannel, "k", &got)
	assert.False(t, ok)
}

func TestMemory_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(nil, clockwork.NewFakeClock())

	require.NoError(t, c.Put(ctx, CategoryComments, "v", entry{Score: 1}))
	require.NoError(t, c.Put(ctx, CategoryComments, "v", entry{Score: 2}))

	var got entry
	ok, err := c.Get(ctx, CategoryComments, "v", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Score)
}

func TestMemory_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(nil, clockwork.NewFakeClock())

	require.NoError(t, c.Put(ctx, CategoryScore, "v", entry{}))
	require.NoError(t, c.Invalidate(ctx, CategoryScore, "v"))

	ok, err := c.Get(ctx, CategoryScore, "v", &entry{})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Invalidate(ctx, CategoryScore, "never-stored"))
}

func TestMemory_UnknownCategory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(TTLs{CategoryScore: time.Minute}, clockwork.NewFakeClock())

	err := c.Put(ctx, CategoryChannel, "x", entry{})
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = c.Get(ctx, Category("bogus"), "x", &entry{})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestMemory_EvictExpired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewMemory(nil, clock)

	require.NoError(t, c.Put(ctx, CategoryScore, "a", entry{}))
	require.NoError(t, c.Put(ctx, CategoryChannel, "b", entry{}))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, c.EvictExpired())
	assert.Equal(t, 1, c.Len())
}

func TestMemory_EvictionTimer(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewMemory(nil, clock)

	require.NoError(t, c.Put(ctx, CategoryScore, "a", entry{}))
	stop := c.StartEvictionTimer(time.Minute)
	defer stop()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(ScoreTTL + time.Minute)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemory_CloseClears(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(nil, nil)

	require.NoError(t, c.Put(ctx, CategoryScore, "a", entry{}))
	require.NoError(t, c.Close())
	assert.Zero(t, c.Len())
}
