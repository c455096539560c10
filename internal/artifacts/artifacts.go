// Package artifacts stores binary step outputs (images, audio, video, thumbnails) under
// {job_id}/{step}/{name} and fetches them back by URL.
package artifacts

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/jonathan/video-pipeline/internal/fetch"
)

// Store uploads artifacts and downloads them back to local paths.
type Store interface {
	// Upload stores data under namespace/name and returns its retrieval URL.
	Upload(ctx context.Context, data []byte, namespace, name string) (string, error)
	// Download writes the artifact at url to destPath atomically.
	Download(ctx context.Context, url, destPath string) error
}

// Namespace returns the upload namespace for a job step.
func Namespace(jobID, step string) string {
	return jobID + "/" + step
}

func cleanSegment(s string) (string, error) {
	s = strings.Trim(path.Clean("/"+s), "/")
	if s == "" || s == "." {
		return "", fmt.Errorf("empty artifact path segment")
	}
	for _, part := range strings.Split(s, "/") {
		if part == ".." {
			return "", fmt.Errorf("artifact path %q escapes root", s)
		}
	}
	return s, nil
}

func objectPath(namespace, name string) (string, error) {
	ns, err := cleanSegment(namespace)
	if err != nil {
		return "", fmt.Errorf("invalid namespace: %w", err)
	}
	n, err := cleanSegment(name)
	if err != nil {
		return "", fmt.Errorf("invalid name: %w", err)
	}
	return ns + "/" + n, nil
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func downloadHTTP(ctx context.Context, url, destPath string) error {
	if _, err := fetch.Download(ctx, url, destPath, nil); err != nil {
		return fmt.Errorf("failed to download artifact: %w", err)
	}
	return nil
}
