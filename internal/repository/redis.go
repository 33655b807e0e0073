package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisBackend stores each location under one Redis string key.
// SET replaces the value in a single command, which makes writes atomic.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	b := NewRedisBackendWithClient(client, cfg.KeyPrefix)
	glog.Infof("[RedisBackend] Initialized - DB:%d, prefix:%s", cfg.DB, b.keyPrefix)
	return b, nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *redis.Client, keyPrefix string) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "iap:records"
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix}
}

func (b *RedisBackend) key(location string) string {
	return b.keyPrefix + ":" + location
}

// Read returns the value stored for location.
func (b *RedisBackend) Read(ctx context.Context, location string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(location)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from Redis: %w", location, err)
	}
	return data, nil
}

// Write replaces the value stored for location. Records never expire.
func (b *RedisBackend) Write(ctx context.Context, location string, data []byte) error {
	if err := b.client.Set(ctx, b.key(location), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", location, err)
	}
	return nil
}

// GetStats returns connection pool statistics.
func (b *RedisBackend) GetStats(ctx context.Context) (map[string]interface{}, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	pool := b.client.PoolStats()
	return map[string]interface{}{
		"prefix":      b.keyPrefix,
		"total_conns": pool.TotalConns,
		"idle_conns":  pool.IdleConns,
		"hits":        pool.Hits,
		"misses":      pool.Misses,
	}, nil
}

// Close closes the Redis client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

var _ Backend = (*RedisBackend)(nil)
