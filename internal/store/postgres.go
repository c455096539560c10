package store

import (
	"context"
	"log"
	"time"

	"github.com/jonathan/video-pipeline/internal/db"
)

// Postgres stores records in the kv_store table.
type Postgres struct {
	db    *db.DB
	owned bool
}

// NewPostgres wraps an open database. The caller keeps ownership of database.
func NewPostgres(database *db.DB) *Postgres {
	return &Postgres{db: database}
}

// OpenPostgres connects, applies the schema, drops expired rows, and owns the
// resulting pool.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}
	if n, err := database.PurgeExpired(ctx); err != nil {
		log.Printf("[store] failed to purge expired rows: %v", err)
	} else if n > 0 {
		log.Printf("[store] purged %d expired rows", n)
	}
	return &Postgres{db: database, owned: true}, nil
}

// Put upserts key. Concurrent writers resolve last-write-wins.
func (p *Postgres) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.db.PutValue(ctx, key, value, ttl); err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Get returns the live value under key or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := p.db.GetValue(ctx, key)
	if err != nil {
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

// Delete removes key.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if err := p.db.DeleteValue(ctx, key); err != nil {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Exists reports whether a live value is stored under key.
func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := p.db.ValueExists(ctx, key)
	if err != nil {
		return false, &Error{Op: "exists", Key: key, Err: err}
	}
	return ok, nil
}

// DB exposes the underlying database so artifact storage can share the pool.
func (p *Postgres) DB() *db.DB {
	return p.db
}

// Close releases the pool when this store opened it.
func (p *Postgres) Close() error {
	if p.owned {
		p.db.Close()
	}
	return nil
}
