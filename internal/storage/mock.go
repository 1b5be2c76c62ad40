package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStorage is an in-memory implementation of Storage for testing.
// Objects live in a map keyed by bucket/key and access is concurrency-safe.
type MemoryStorage struct {
	objects map[string]memoryObject
	mu      sync.RWMutex

	// Failure injection for tests.
	GetErr error
	PutErr error
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string]memoryObject),
	}
}

var _ Storage = (*MemoryStorage)(nil)

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

func (s *MemoryStorage) PutObject(ctx context.Context, bucket, key string, reader io.Reader, contentType string, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.PutErr != nil {
		return s.PutErr
	}
	if key == "" {
		return ErrInvalidKey
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[objectKey(bucket, key)] = memoryObject{
		data:        data,
		contentType: contentType,
	}
	return nil
}

func (s *MemoryStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.GetErr != nil {
		return nil, s.GetErr
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[objectKey(bucket, key)]
	if !exists {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, objectKey(bucket, key))
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.objects[objectKey(bucket, key)]
	return exists, nil
}

func (s *MemoryStorage) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// ObjectBytes returns a stored object's contents, for assertions in tests.
func (s *MemoryStorage) ObjectBytes(bucket, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[objectKey(bucket, key)]
	if !exists {
		return nil, false
	}
	return obj.data, true
}

// ObjectContentType returns a stored object's content type.
func (s *MemoryStorage) ObjectContentType(bucket, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[objectKey(bucket, key)]
	if !exists {
		return "", false
	}
	return obj.contentType, true
}
