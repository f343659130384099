package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/formbridge/model"
)

// RedisStore is a Redis-backed Store for multi-instance deployments where
// lookup caches must be shared.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed lookup cache.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the cached options for key, if present.
func (s *RedisStore) Get(ctx context.Context, key string) ([]model.OptionValue, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var options []model.OptionValue
	if err := json.Unmarshal(raw, &options); err != nil {
		return nil, false, fmt.Errorf("unmarshal lookup entry %q: %w", key, err)
	}
	return options, true, nil
}

// Put stores options under key with the given TTL.
func (s *RedisStore) Put(ctx context.Context, key string, options []model.OptionValue, ttl time.Duration) error {
	data, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal lookup entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// HealthCheck verifies connectivity to Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
