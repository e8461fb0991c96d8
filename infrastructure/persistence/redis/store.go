package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "atelier:"

// Store is the Redis-backed snapshot store. Snapshots are small and
// few, one value per logical key, so plain string keys under a single
// prefix are all the schema there is.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStore connects to Redis and verifies the connection
func NewStore(redisURL string, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewStoreWithClient(client, logger), nil
}

// NewStoreWithClient wraps an existing Redis client
func NewStoreWithClient(client *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, logger: logger}
}

var _ ports.SnapshotStore = (*Store)(nil)

func (s *Store) key(logical string) string {
	return keyPrefix + logical
}

// Get retrieves the payload stored under a logical key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return payload, nil
}

// Set durably stores a payload under a logical key. Snapshots never
// expire; the engine overwrites them for as long as it runs.
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	if err := s.client.Set(ctx, s.key(key), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	s.logger.Debug("Snapshot written to redis",
		zap.String("key", key),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

// Delete removes a logical key
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping reports whether Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
