package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a concurrency-safe in-memory blob store, grounded on the
// teacher's mutex-guarded in-memory stores (pkg/storage/memory). It is the
// default store for tests and the dry-run validation path.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	baseURL  string
}

// NewMemoryStore creates an empty MemoryStore. baseURL, if non-empty, is
// prefixed onto PublicURL results.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *MemoryStore) Save(_ context.Context, componentName string, data []byte, ext string) (string, error) {
	handle := sanitizeKey(path.Join(componentName, uuid.NewString()+normalizeExt(ext)))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[handle] = append([]byte(nil), data...)
	return handle, nil
}

func (m *MemoryStore) SaveAtPath(_ context.Context, p string, data []byte) (string, error) {
	handle := sanitizeKey(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[handle] = append([]byte(nil), data...)
	return handle, nil
}

func (m *MemoryStore) Retrieve(_ context.Context, handle string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[sanitizeKey(handle)]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", handle)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Delete(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, sanitizeKey(handle))
	return nil
}

func (m *MemoryStore) DeleteBatch(ctx context.Context, handles []string) error {
	var firstErr error
	for _, h := range handles {
		if err := m.Delete(ctx, h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	prefix = sanitizeKey(prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) PublicURL(handle string) string {
	if m.baseURL == "" {
		return "memory://" + sanitizeKey(handle)
	}
	return m.baseURL + "/" + sanitizeKey(handle)
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// sanitizeKey mirrors the teacher's path-traversal guard in
// pkg/blob/supabase_storage.go: strip leading slashes, clean the path, and
// neutralize ".." segments.
func sanitizeKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	key = path.Clean(key)
	key = strings.ReplaceAll(key, "..", "_")
	return key
}
