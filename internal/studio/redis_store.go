package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "logostudio"

// RedisStore implements SessionStore on top of Redis
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisSessionStore wraps RedisStore with a session id for key prefixing
type RedisSessionStore struct {
	store     *RedisStore
	sessionID string
}

// NewRedisStoreFromClient creates a Redis store from an existing client
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// ForSession creates a session scoped store
func (r *RedisStore) ForSession(sessionID string) Store {
	return &RedisSessionStore{
		store:     r,
		sessionID: sessionID,
	}
}

// buildKey creates a scoped key with session context
func (s *RedisSessionStore) buildKey(key string) string {
	// Clean key to remove any potential path separators
	cleanKey := strings.ReplaceAll(key, "/", "_")
	return fmt.Sprintf("%s/%s/%s", redisKeyPrefix, s.sessionID, cleanKey)
}

// Get retrieves a value
func (s *RedisSessionStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	k := s.buildKey(key)

	result, err := s.store.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key %s from Redis: %w", k, err)
	}

	return result, true, nil
}

// Set stores a value with the store's TTL
func (s *RedisSessionStore) Set(ctx context.Context, key string, value []byte) error {
	k := s.buildKey(key)

	if err := s.store.client.Set(ctx, k, value, s.store.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in Redis: %w", k, err)
	}

	return nil
}

// Clear deletes a value
func (s *RedisSessionStore) Clear(ctx context.Context, key string) error {
	k := s.buildKey(key)

	if err := s.store.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s from Redis: %w", k, err)
	}

	return nil
}

// Flush removes every key of the session
func (s *RedisSessionStore) Flush(ctx context.Context) error {
	pattern := fmt.Sprintf("%s/%s/*", redisKeyPrefix, s.sessionID)

	iter := s.store.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan for keys with pattern %s: %w", pattern, err)
	}

	if len(keys) > 0 {
		if err := s.store.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
	}

	return nil
}
