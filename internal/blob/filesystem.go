package blob

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FilesystemStore persists blobs as files under a root directory. It is a
// reference local-disk implementation; concrete managed object stores
// (S3-compatible backends) remain out of scope per spec §1.
type FilesystemStore struct {
	root    string
	baseURL string
}

// NewFilesystemStore creates a FilesystemStore rooted at dir. baseURL, if
// non-empty, is prefixed onto PublicURL results (e.g. a CDN in front of the
// directory).
func NewFilesystemStore(dir, baseURL string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FilesystemStore{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (f *FilesystemStore) Save(_ context.Context, componentName string, data []byte, ext string) (string, error) {
	handle := sanitizeKey(path.Join(componentName, uuid.NewString()+normalizeExt(ext)))
	return handle, f.write(handle, data)
}

func (f *FilesystemStore) SaveAtPath(_ context.Context, p string, data []byte) (string, error) {
	handle := sanitizeKey(p)
	return handle, f.write(handle, data)
}

func (f *FilesystemStore) write(handle string, data []byte) error {
	full := filepath.Join(f.root, filepath.FromSlash(handle))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir blob dir: %w", err)
	}
	return os.WriteFile(full, data, 0o644)
}

func (f *FilesystemStore) Retrieve(_ context.Context, handle string) ([]byte, error) {
	full := filepath.Join(f.root, filepath.FromSlash(sanitizeKey(handle)))
	return os.ReadFile(full)
}

func (f *FilesystemStore) Delete(_ context.Context, handle string) error {
	full := filepath.Join(f.root, filepath.FromSlash(sanitizeKey(handle)))
	err := os.Remove(full)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FilesystemStore) DeleteBatch(ctx context.Context, handles []string) error {
	var firstErr error
	for _, h := range handles {
		if err := f.Delete(ctx, h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *FilesystemStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	root := filepath.Join(f.root, filepath.FromSlash(sanitizeKey(prefix)))
	count := 0
	err := filepath.Walk(filepath.Dir(root), func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return nil
		}
		if strings.HasPrefix(filepath.ToSlash(rel), sanitizeKey(prefix)) {
			if rmErr := os.Remove(p); rmErr == nil {
				count++
			}
		}
		return nil
	})
	if os.IsNotExist(err) {
		return count, nil
	}
	return count, err
}

func (f *FilesystemStore) PublicURL(handle string) string {
	if f.baseURL == "" {
		return "file://" + filepath.Join(f.root, sanitizeKey(handle))
	}
	return f.baseURL + "/" + sanitizeKey(handle)
}
