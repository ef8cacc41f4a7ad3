package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerly/dispatch/internal/cache"
)

// ResultStore implements cache.Store on Redis. Keys are already
// content-addressed by the cache layer, so values map 1:1 to Redis
// strings with a TTL.
type ResultStore struct {
	rdb *redis.Client
}

// NewResultStore creates a Redis-backed cache store.
func NewResultStore(client *Client) *ResultStore {
	return &ResultStore{rdb: client.rdb}
}

func (s *ResultStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (s *ResultStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *ResultStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
