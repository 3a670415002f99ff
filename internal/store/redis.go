package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/abxy/internal/models"
)

// RedisStore handles Redis operations for access sessions and rate limiting.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client, now: time.Now}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the key for an access session.
func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// SaveSession stores an access session until it expires.
func (s *RedisStore) SaveSession(ctx context.Context, sess models.AccessSession) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(sess.ID), data, ttl).Err()
}

// GetSession returns the access session with the given id, or nil if it
// does not exist or has expired.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*models.AccessSession, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var sess models.AccessSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession revokes an access session.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}
