package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
)

// Redis stores records in a Redis server using SET with EX.
type Redis struct {
	client redis.Cmdable
	closer func() error
}

// NewRedis connects to the server described by a redis:// URL and verifies it with PING.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	r := NewRedisFromClient(client)
	r.closer = client.Close
	return r, nil
}

// NewRedisFromClient wraps an existing client or pipeline. Close leaves it open.
func NewRedisFromClient(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// Put sets key with the given expiry. A zero ttl keeps the key until deleted.
func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.client.Set(key, value, ttl).Err(); err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Get returns the value under key or ErrNotFound.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, err := r.client.Get(key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	return value, nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.client.Del(key).Err(); err != nil {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Exists reports whether key is present.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n, err := r.client.Exists(key).Result()
	if err != nil {
		return false, &Error{Op: "exists", Key: key, Err: err}
	}
	return n > 0, nil
}

// Close closes the client when this store created it.
func (r *Redis) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}
