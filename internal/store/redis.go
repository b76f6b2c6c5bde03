package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// eventsChannel is the pub/sub channel every instance publishes hub events to.
const eventsChannel = "parley:events"

// presenceTTL bounds how long a crashed instance can leave a user marked
// online in the cache.
const presenceTTL = 5 * time.Minute

// RedisStore handles Redis operations: the cross-instance event bridge,
// the presence cache, and raw client access for the rate limiter.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that keeps its own
// key schema (rate limiting, IP blocking).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// PublishEvent publishes a serialized hub event to the shared channel.
func (s *RedisStore) PublishEvent(ctx context.Context, payload []byte) error {
	return s.client.Publish(ctx, eventsChannel, payload).Err()
}

// SubscribeEvents subscribes to the shared event channel and returns the
// subscription; the caller owns its lifecycle.
func (s *RedisStore) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, eventsChannel)
}

// presenceKey returns the key for a user's online marker.
func presenceKey(userID int64) string {
	return fmt.Sprintf("presence:%d", userID)
}

// SetPresence records or clears a user's online marker.
func (s *RedisStore) SetPresence(ctx context.Context, userID int64, online bool) error {
	key := presenceKey(userID)
	if !online {
		return s.client.Del(ctx, key).Err()
	}
	return s.client.Set(ctx, key, "1", presenceTTL).Err()
}

// IsOnline checks the presence cache for a user.
func (s *RedisStore) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := s.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
