package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each logical store as one Redis hash named
// "<database>:<store>".
type RedisBackend struct {
	redis    *redis.Client
	database string
}

// NewRedisBackend creates a Redis backend. An empty database name falls back
// to DefaultDatabase.
func NewRedisBackend(redisClient *redis.Client, database string) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if database == "" {
		database = DefaultDatabase
	}
	return &RedisBackend{
		redis:    redisClient,
		database: database,
	}
}

// HashKey returns the Redis key holding a logical store.
func (r *RedisBackend) HashKey(store string) string {
	return r.database + ":" + store
}

func (r *RedisBackend) Get(ctx context.Context, store, key string) ([]byte, error) {
	data, err := r.redis.HGet(ctx, r.HashKey(store), key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	return data, nil
}

func (r *RedisBackend) Put(ctx context.Context, store, key string, value []byte) error {
	if err := r.redis.HSet(ctx, r.HashKey(store), key, value).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisBackend) PutMany(ctx context.Context, store string, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}

	if err := r.redis.HSet(ctx, r.HashKey(store), fields).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisBackend) All(ctx context.Context, store string) (map[string][]byte, error) {
	fields, err := r.redis.HGetAll(ctx, r.HashKey(store)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	out := make(map[string][]byte, len(fields))
	for k, v := range fields {
		out[k] = []byte(v)
	}
	return out, nil
}

func (r *RedisBackend) Clear(ctx context.Context, store string) error {
	if err := r.redis.Del(ctx, r.HashKey(store)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *RedisBackend) Close() error {
	return r.redis.Close()
}
