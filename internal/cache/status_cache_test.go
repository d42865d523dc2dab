package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/printfarm/internal/core"
)

func newTestCache(t *testing.T) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStatusCache(client, time.Minute), mr
}

func TestStatusCachePutGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	printer := int64(3)
	require.NoError(t, c.Put(ctx, &core.LiveStatus{
		StatusID:  9,
		OrderID:   1001,
		PrinterID: &printer,
		Status:    "printing",
		Progress:  42.5,
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	assert.True(t, mr.Exists("print_status:9"))
	assert.Equal(t, time.Minute, mr.TTL("print_status:9"))

	snap, err := c.Get(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "printing", snap.Status)
	assert.Equal(t, 42.5, snap.Progress)
	assert.Equal(t, printer, *snap.PrinterID)
}

func TestStatusCacheMissAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	snap, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, c.Put(ctx, &core.LiveStatus{StatusID: 1, Status: "pending"}))
	mr.FastForward(2 * time.Minute)

	snap, err = c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStatusCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, &core.LiveStatus{StatusID: 1, Status: "pending"}))
	require.NoError(t, c.Invalidate(ctx, 1))

	snap, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(context.Background(), Config{Addr: addr})
	assert.Error(t, err)
}
