package hooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "judge:hook:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) Register(ctx context.Context, executionID, callbackURL string) error {
	if err := s.client.Set(ctx, redisKeyPrefix+executionID, callbackURL, s.ttl).Err(); err != nil {
		return fmt.Errorf("register hook: %w", err)
	}
	return nil
}

func (s *RedisStore) Contains(ctx context.Context, executionID string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+executionID).Result()
	if err != nil {
		return false, fmt.Errorf("lookup hook: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, executionID string) (string, error) {
	v, err := s.client.Get(ctx, redisKeyPrefix+executionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", notFound(executionID)
	}
	if err != nil {
		return "", fmt.Errorf("get hook: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Remove(ctx context.Context, executionID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+executionID).Err(); err != nil {
		return fmt.Errorf("remove hook: %w", err)
	}
	return nil
}
