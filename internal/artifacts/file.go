package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/video-pipeline/internal/fsutil"
)

// FileStore keeps artifacts in a local directory tree.
type FileStore struct {
	root    string
	baseURL string
}

// NewFileStore creates a store rooted at root. When baseURL is set, uploads return
// {baseURL}/{namespace}/{name}; otherwise they return file:// URLs.
func NewFileStore(root, baseURL string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &FileStore{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the absolute artifact directory.
func (s *FileStore) Root() string {
	return s.root
}

// Upload writes data to root/namespace/name.
func (s *FileStore) Upload(_ context.Context, data []byte, namespace, name string) (string, error) {
	rel, err := objectPath(namespace, name)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := fsutil.WriteFile(dest, data); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", rel, err)
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + rel, nil
	}
	return "file://" + filepath.ToSlash(dest), nil
}

// Download copies a stored artifact to destPath. It accepts file:// URLs, URLs under
// the public base URL, and plain http(s) URLs.
func (s *FileStore) Download(ctx context.Context, url, destPath string) error {
	src, ok := s.localPath(url)
	if !ok {
		if isHTTP(url) {
			return downloadHTTP(ctx, url, destPath)
		}
		return fmt.Errorf("unsupported artifact URL %q", url)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fsutil.CopyTo(destPath, f); err != nil {
		return fmt.Errorf("failed to download artifact %s: %w", url, err)
	}
	return nil
}

// Resolve maps a relative artifact path to its file under root.
func (s *FileStore) Resolve(rel string) (string, error) {
	clean, err := cleanSegment(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FileStore) localPath(url string) (string, bool) {
	if strings.HasPrefix(url, "file://") {
		p := filepath.FromSlash(strings.TrimPrefix(url, "file://"))
		if !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
			return "", false
		}
		return p, true
	}
	if s.baseURL != "" && strings.HasPrefix(url, s.baseURL+"/") {
		p, err := s.Resolve(strings.TrimPrefix(url, s.baseURL+"/"))
		if err != nil {
			return "", false
		}
		return p, true
	}
	return "", false
}
