package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/video-pipeline/internal/retry"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	RedisURL    string
	DatabaseURL string
	Retry       *retry.Config
}

// Open builds the configured backend wrapped with retries for transient failures.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)

	switch opts.Backend {
	case "", BackendMemory:
		s = NewMemory()
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires REDIS_URL")
		}
		s, err = NewRedis(opts.RedisURL)
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		s, err = OpenPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown state backend: %s", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[store] using %s backend", backendName(opts.Backend))

	cfg := retry.DefaultConfig()
	if opts.Retry != nil {
		cfg = *opts.Retry
	}
	return WithRetry(s, cfg), nil
}

func backendName(b string) string {
	if b == "" {
		return BackendMemory
	}
	return b
}

// Retrying retries backend failures before propagating them. ErrNotFound is never retried.
type Retrying struct {
	inner Store
	cfg   retry.Config
}

// WithRetry wraps s with the given retry policy.
func WithRetry(s Store, cfg retry.Config) *Retrying {
	return &Retrying{inner: s, cfg: cfg}
}

func classify(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}
	return retry.IsRetryable(err)
}

// Put implements Store.
func (r *Retrying) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return retry.Do(ctx, r.cfg, classify, func(ctx context.Context) error {
		return r.inner.Put(ctx, key, value, ttl)
	})
}

// Get implements Store.
func (r *Retrying) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := retry.Do(ctx, r.cfg, classify, func(ctx context.Context) error {
		v, err := r.inner.Get(ctx, key)
		value = v
		return err
	})
	return value, err
}

// Delete implements Store.
func (r *Retrying) Delete(ctx context.Context, key string) error {
	return retry.Do(ctx, r.cfg, classify, func(ctx context.Context) error {
		return r.inner.Delete(ctx, key)
	})
}

// Exists implements Store.
func (r *Retrying) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := retry.Do(ctx, r.cfg, classify, func(ctx context.Context) error {
		v, err := r.inner.Exists(ctx, key)
		ok = v
		return err
	})
	return ok, err
}

// Unwrap returns the wrapped backend.
func (r *Retrying) Unwrap() Store {
	return r.inner
}

// Close implements Store.
func (r *Retrying) Close() error {
	return r.inner.Close()
}
