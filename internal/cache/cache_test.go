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
)

type item struct {
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestAside_FetchesOnceThenHits(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *item) func() error {
		return func() error {
			calls++
			dest.Name = "first"
			return nil
		}
	}

	var a item
	require.NoError(t, c.Aside(ctx, "k", &a, time.Minute, fetch(&a)))
	var b item
	require.NoError(t, c.Aside(ctx, "k", &b, time.Minute, fetch(&b)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "first", b.Name)
	assert.True(t, mr.Exists("k"))
}

func TestAside_FetchErrorIsReturned(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("boom")

	var dest item
	err := c.Aside(context.Background(), "k", &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestDelete(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, PostKey(3), item{Name: "x"}, time.Minute))
	require.True(t, mr.Exists("post:3"))

	require.NoError(t, c.Delete(ctx, PostKey(3)))
	assert.False(t, mr.Exists("post:3"))
	assert.NoError(t, c.Delete(ctx, PostKey(99)))
}

func TestNilCacheIsNoop(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	found, err := c.GetJSON(ctx, "k", &item{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.SetJSON(ctx, "k", item{}, time.Minute))
	assert.NoError(t, c.Delete(ctx, "k"))

	calls := 0
	require.NoError(t, c.Aside(ctx, "k", &item{}, time.Minute, func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
}

func TestNewClient_Unreachable(t *testing.T) {
	assert.Nil(t, NewClient(""))
	assert.Nil(t, NewClient("redis://localhost:notaport"))
}

func TestNewClient_Miniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := NewClient("redis://" + mr.Addr() + "/0")
	require.NotNil(t, client)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}
