package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryObjectStore keeps object bytes in-process. Used in tests.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	baseURL string
	bucket  string
}

// NewMemoryObjectStore initializes an empty in-memory object store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{
		objects: make(map[string][]byte),
		baseURL: "https://objects.local",
		bucket:  "quizshow",
	}
}

func (m *MemoryObjectStore) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return PublicURL(m.baseURL, m.bucket, key), nil
}

func (m *MemoryObjectStore) DeleteByURL(_ context.Context, fileURL string) (bool, error) {
	key, ok := KeyFromURL(fileURL, m.baseURL, m.bucket)
	if !ok {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[key]; !exists {
		return false, nil
	}
	delete(m.objects, key)
	return true, nil
}

// Len returns the number of live objects.
func (m *MemoryObjectStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Has reports whether a public URL still resolves to a live object.
func (m *MemoryObjectStore) Has(fileURL string) bool {
	key, ok := KeyFromURL(fileURL, m.baseURL, m.bucket)
	if !ok {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.objects[key]
	return exists
}
