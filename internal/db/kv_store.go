package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Key/Value Methods
// -----------------------------------------------------------------------------

// PutValue upserts a value. A zero ttl stores the value without expiry.
func (db *DB) PutValue(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO kv_store (key, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = $2, expires_at = $3, updated_at = NOW()`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put value %s: %w", key, err)
	}
	return nil
}

// GetValue returns the stored value, or nil if the key is absent or expired.
func (db *DB) GetValue(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.pool.QueryRow(ctx,
		`SELECT value FROM kv_store
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())`,
		key,
	).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get value %s: %w", key, err)
	}
	return value, nil
}

// DeleteValue removes a key. Deleting an absent key is not an error.
func (db *DB) DeleteValue(ctx context.Context, key string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete value %s: %w", key, err)
	}
	return nil
}

// ValueExists reports whether a live (unexpired) value is stored under key.
func (db *DB) ValueExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM kv_store
		   WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
		 )`,
		key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check value %s: %w", key, err)
	}
	return exists, nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (db *DB) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired values: %w", err)
	}
	return tag.RowsAffected(), nil
}
