package storage

import (
	"context"
	"strings"
	"sync"

	matchmate_errors "matchmate-chat/pkg/errors"
)

type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps media in process for the dev relay when no bucket is
// configured. URLs point at BaseURL, which the relay serves from Get.
type MemoryStore struct {
	baseURL string
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]Object),
	}
}

func (m *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	if key == "" || contentType == "" {
		return "", matchmate_errors.ErrInvalidInput
	}
	m.mu.Lock()
	m.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return m.baseURL + "/" + key, nil
}

func (m *MemoryStore) Get(key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, matchmate_errors.ErrNotFound
	}
	return obj, nil
}
