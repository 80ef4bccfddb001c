package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, zap.NewNop()), mr
}

func TestGetReturnsMissWithoutError(t *testing.T) {
	c, _ := newTestCache(t)

	val, found, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)
}

func TestSetThenGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "movie:the-matrix-1999:desc:default", `{"title":"The Matrix"}`, time.Hour))

	val, found, err := c.Get(ctx, "movie:the-matrix-1999:desc:default")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"title":"The Matrix"}`, val)
}

func TestSetNXIsExclusive(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	won, err := c.SetNX(ctx, "slot", "job-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = c.SetNX(ctx, "slot", "job-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	val, found, err := c.Get(ctx, "slot")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "job-a", val)
}

func TestDeleteIsIdempotent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"))

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetNXExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	won, err := c.SetNX(ctx, "slot", "job-a", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	mr.FastForward(2 * time.Minute)

	won, err = c.SetNX(ctx, "slot", "job-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestGetReportsUnavailableWhenDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}
