package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis, so every API replica sees the
// same sessions.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string) (*RedisStore, error) {
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

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "reanchor:",
	}
}

func (s *RedisStore) key(pageURL string) string {
	return s.prefix + pageURL
}

// Start claims the page with SETNX and no expiry.
func (s *RedisStore) Start(ctx context.Context, rs ReanchorSession) error {
	payload, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(rs.PageURL), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if !ok {
		return ErrSessionActive
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context, pageURL string) (ReanchorSession, error) {
	raw, err := s.client.Get(ctx, s.key(pageURL)).Bytes()
	return decodeSession(raw, err)
}

func (s *RedisStore) End(ctx context.Context, pageURL string) (ReanchorSession, error) {
	raw, err := s.client.GetDel(ctx, s.key(pageURL)).Bytes()
	return decodeSession(raw, err)
}

func decodeSession(raw []byte, err error) (ReanchorSession, error) {
	if errors.Is(err, redis.Nil) {
		return ReanchorSession{}, ErrNoSession
	}
	if err != nil {
		return ReanchorSession{}, fmt.Errorf("lookup session: %w", err)
	}
	var rs ReanchorSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return ReanchorSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return rs, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
