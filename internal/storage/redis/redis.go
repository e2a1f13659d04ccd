// Package redis provides a Redis-backed implementation of the storage.Store interface.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/whobought/internal/models"
	"github.com/mmynk/whobought/internal/storage"
)

// Ensure RedisStore implements storage.Store
var _ storage.Store = (*RedisStore)(nil)

// Options locate the Redis server.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps the session as one JSON value under a fixed key.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, opts Options) (*RedisStore, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisStore{rdb: rdb, key: models.SessionRecordName}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Save replaces the stored session value.
func (s *RedisStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		session = &models.Session{}
	}
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load reads the stored session. A missing key yields nil, nil.
func (s *RedisStore) Load(ctx context.Context) (*models.Session, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	session := &models.Session{}
	if err := json.Unmarshal(b, session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return session, nil
}

// Clear deletes the stored session.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
