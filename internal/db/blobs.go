package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Artifact Blob Methods
// -----------------------------------------------------------------------------

// SaveBlob stores a binary artifact under namespace/name and returns its ID.
// Re-uploading the same namespace/name replaces the content and keeps the ID.
func (db *DB) SaveBlob(ctx context.Context, input *BlobInput) (uuid.UUID, error) {
	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO artifact_blobs (id, namespace, name, content_type, content)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (namespace, name) DO UPDATE SET content_type = $4, content = $5, created_at = NOW()
		 RETURNING id`,
		uuid.New(), input.Namespace, input.Name, contentType, input.Content,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save blob %s/%s: %w", input.Namespace, input.Name, err)
	}
	return id, nil
}

// GetBlob retrieves a blob by ID, or nil if it does not exist.
func (db *DB) GetBlob(ctx context.Context, id uuid.UUID) (*Blob, error) {
	var blob Blob
	err := db.pool.QueryRow(ctx,
		`SELECT id, namespace, name, content_type, content, created_at
		 FROM artifact_blobs WHERE id = $1`,
		id,
	).Scan(&blob.ID, &blob.Namespace, &blob.Name, &blob.ContentType, &blob.Content, &blob.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", id, err)
	}
	return &blob, nil
}

// DeleteBlobsByNamespacePrefix removes every blob whose namespace starts with prefix.
func (db *DB) DeleteBlobsByNamespacePrefix(ctx context.Context, prefix string) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM artifact_blobs WHERE left(namespace, length($1)) = $1`,
		prefix,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete blobs under %s: %w", prefix, err)
	}
	return tag.RowsAffected(), nil
}
