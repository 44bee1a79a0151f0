package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed-window limiter on top of ulule/limiter's Redis store. Checkout uses it
// because each window maps to a single counter key.
type Fixed struct {
	store limiter.Store
}

// NewFixed builds a Fixed limiter storing counters under prefix.
func NewFixed(client *redis.Client, prefix string) (*Fixed, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   prefix,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: build store: %w", err)
	}
	return &Fixed{store: store}, nil
}

// Allow implements Limiter.
func (f *Fixed) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if f == nil || f.store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(f.store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
