package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSON wraps Redis helpers for JSON payloads stored under a common key namespace.
type JSON struct {
	client    *redis.Client
	ttl       time.Duration
	namespace string
}

// NewJSON constructs a cache helper. A nil client yields a cache that always misses.
func NewJSON(client *redis.Client, namespace string, ttl time.Duration) *JSON {
	return &JSON{client: client, ttl: ttl, namespace: strings.TrimSuffix(namespace, ":")}
}

// Key joins parts under the cache namespace.
func (c *JSON) Key(parts ...string) string {
	if c == nil {
		return strings.Join(parts, ":")
	}
	all := make([]string, 0, len(parts)+1)
	if c.namespace != "" {
		all = append(all, c.namespace)
	}
	all = append(all, parts...)
	return strings.Join(all, ":")
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *JSON) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL. A non-positive TTL
// disables caching.
func (c *JSON) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes cached keys.
func (c *JSON) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
