package artifacts

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/video-pipeline/internal/db"
	"github.com/jonathan/video-pipeline/internal/fsutil"
)

const dbURLPrefix = "db://artifacts/"

// DBStore keeps artifacts as bytea blobs in PostgreSQL.
type DBStore struct {
	db *db.DB
}

// NewDBStore creates a blob-backed store on an open database.
func NewDBStore(database *db.DB) *DBStore {
	return &DBStore{db: database}
}

// Upload saves data as a blob and returns db://artifacts/{id}.
func (s *DBStore) Upload(ctx context.Context, data []byte, namespace, name string) (string, error) {
	rel, err := objectPath(namespace, name)
	if err != nil {
		return "", err
	}
	ns, n := filepath.ToSlash(filepath.Dir(rel)), filepath.Base(rel)

	id, err := s.db.SaveBlob(ctx, &db.BlobInput{
		Namespace:   ns,
		Name:        n,
		ContentType: mime.TypeByExtension(filepath.Ext(n)),
		Content:     data,
	})
	if err != nil {
		return "", err
	}
	return dbURLPrefix + id.String(), nil
}

// Download writes the blob at url to destPath. http(s) URLs are fetched directly.
func (s *DBStore) Download(ctx context.Context, url, destPath string) error {
	if isHTTP(url) {
		return downloadHTTP(ctx, url, destPath)
	}

	id, err := ParseDBURL(url)
	if err != nil {
		return err
	}
	blob, err := s.db.GetBlob(ctx, id)
	if err != nil {
		return err
	}
	if blob == nil {
		return fmt.Errorf("artifact %s not found", url)
	}
	if err := fsutil.WriteFile(destPath, blob.Content); err != nil {
		return fmt.Errorf("failed to download artifact %s: %w", url, err)
	}
	return nil
}

// DeleteJob removes every blob uploaded for jobID.
func (s *DBStore) DeleteJob(ctx context.Context, jobID string) (int64, error) {
	return s.db.DeleteBlobsByNamespacePrefix(ctx, jobID+"/")
}

// ParseDBURL extracts the blob id from a db://artifacts/{uuid} URL.
func ParseDBURL(url string) (uuid.UUID, error) {
	if !strings.HasPrefix(url, dbURLPrefix) {
		return uuid.Nil, fmt.Errorf("not a database artifact URL: %q", url)
	}
	id, err := uuid.Parse(strings.TrimPrefix(url, dbURLPrefix))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid artifact id in %q: %w", url, err)
	}
	return id, nil
}
