package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/walletglass/walletglass/service/price"
)

// RedisStore is the durable cache tier: priced observations survive process
// restarts and are shared across instances. Values are JSON with a TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore wraps a redis client. ttl bounds how long entries live;
// the prefix namespaces keys so the cache can share a database.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "price:"}
}

// Get fetches one entry. A missing key returns (nil, nil).
func (s *RedisStore) Get(ctx context.Context, key string) (*price.Result, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var res price.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode cached price %s: %w", key, err)
	}
	return &res, nil
}

// GetBatch fetches many entries in a single MGET round trip. Missing or
// undecodable keys are simply absent from the returned map.
func (s *RedisStore) GetBatch(ctx context.Context, keys []string) (map[string]*price.Result, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	vals, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make(map[string]*price.Result, len(keys))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var res price.Result
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			continue
		}
		out[keys[i]] = &res
	}
	return out, nil
}

// Set stores one entry under the configured TTL.
func (s *RedisStore) Set(ctx context.Context, key string, res *price.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode price %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping verifies connectivity, for startup checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
