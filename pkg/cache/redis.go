// Package cache provides a small Redis-backed cache used in front of
// expensive, slowly-changing remote API lookups.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = fmt.Errorf("cache miss")

// RedisCache stores JSON-serialized values with per-key TTLs.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ctx: ctx}, nil
}

// Set stores a value under key with the given TTL.
func (rc *RedisCache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return rc.client.Set(rc.ctx, key, data, ttl).Err()
}

// Get loads the value stored under key into dest. A missing key returns
// ErrCacheMiss.
func (rc *RedisCache) Get(key string, dest interface{}) error {
	data, err := rc.client.Get(rc.ctx, key).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Exists reports whether key is present.
func (rc *RedisCache) Exists(key string) (bool, error) {
	n, err := rc.client.Exists(rc.ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a key.
func (rc *RedisCache) Delete(key string) error {
	return rc.client.Del(rc.ctx, key).Err()
}

// Close releases the underlying connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
