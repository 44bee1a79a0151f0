package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/maxnotes/storefront/internal/cache"
)

type payload struct {
	IDs []string `json:"ids"`
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewJSON(client, "search:", time.Minute)
	key := c.Key("v1", "calculus")
	require.Equal(t, "search:v1:calculus", key)

	ctx := context.Background()
	var out payload
	hit, err := c.GetJSON(ctx, key, &out)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, key, payload{IDs: []string{"ma1521"}}))
	hit, err = c.GetJSON(ctx, key, &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, []string{"ma1521"}, out.IDs)

	mr.FastForward(2 * time.Minute)
	hit, err = c.GetJSON(ctx, key, &out)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, key, payload{}))
	require.NoError(t, c.Delete(ctx, key))
	require.False(t, mr.Exists(key))
}

func TestJSONDisabled(t *testing.T) {
	var nilCache *cache.JSON
	hit, err := nilCache.GetJSON(context.Background(), "k", &payload{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, nilCache.SetJSON(context.Background(), "k", payload{}))

	noTTL := cache.NewJSON(nil, "x", 0)
	require.NoError(t, noTTL.SetJSON(context.Background(), "k", payload{}))
}
