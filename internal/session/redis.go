package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares handshake state between replicas behind a load balancer.
// Keys: {prefix}{session id} -> JSON HandshakeState, expiring after ttl.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Ping checks connectivity; used at startup and by /readyz.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Put(ctx context.Context, id string, state HandshakeState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (HandshakeState, error) {
	val, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return HandshakeState{}, ErrNoActiveHandshake
	}
	if err != nil {
		return HandshakeState{}, fmt.Errorf("redis get: %w", err)
	}
	var st HandshakeState
	if err := json.Unmarshal(val, &st); err != nil {
		return HandshakeState{}, fmt.Errorf("decode handshake state: %w", err)
	}
	return st, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
