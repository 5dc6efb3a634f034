// Package memory implements an in-memory blob store for tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.BlobStore = (*Store)(nil)

type blobEntry struct {
	info domain.BlobInfo
	data []byte
}

// Store implements domain.BlobStore backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]blobEntry
}

// New returns an in-memory blob store.
func New() *Store { return &Store{objs: make(map[string]blobEntry)} }

// Put stores a new blob; errors if key exists.
func (s *Store) Put(_ context.Context, key string, r io.Reader, contentType string) (domain.BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return domain.BlobInfo{}, fmt.Errorf("blob %s already exists", key)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return domain.BlobInfo{}, err
	}
	info := domain.BlobInfo{
		Key:         key,
		URL:         "memory://" + key,
		Size:        int64(len(b)),
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	}
	s.objs[key] = blobEntry{info: info, data: b}
	return info, nil
}

// Delete removes a blob, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; !ok {
		return false, nil
	}
	delete(s.objs, key)
	return true, nil
}

// URL returns a stable pseudo-URL for the key.
func (s *Store) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objs[key]
	if !ok {
		return "", fmt.Errorf("blob %s not found", key)
	}
	return obj.info.URL, nil
}

// Bytes returns a copy of the stored content; test helper.
func (s *Store) Bytes(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objs[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, true
}
