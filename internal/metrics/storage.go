package metrics

import (
	"context"
	"io"
	"time"

	"github.com/framekeep/framekeep/internal/storage"
)

// InstrumentedStorage wraps a storage backend and records operation counts,
// latencies and byte volumes.
type InstrumentedStorage struct {
	storage.Storage
}

func NewInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s}
}

func (s *InstrumentedStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	start := time.Now()
	reader, err := s.Storage.GetObject(ctx, bucket, key)
	observe("get", start, err)
	if err != nil {
		return nil, err
	}
	return &countingReadCloser{ReadCloser: reader}, nil
}

func (s *InstrumentedStorage) PutObject(ctx context.Context, bucket, key string, reader io.Reader, contentType string, size int64) error {
	start := time.Now()
	err := s.Storage.PutObject(ctx, bucket, key, reader, contentType, size)
	observe("put", start, err)
	if err == nil {
		StorageBytesTotal.WithLabelValues("put").Add(float64(size))
	}
	return err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, bucket, key string) error {
	start := time.Now()
	err := s.Storage.Delete(ctx, bucket, key)
	observe("delete", start, err)
	return err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	start := time.Now()
	exists, err := s.Storage.Exists(ctx, bucket, key)
	observe("exists", start, err)
	return exists, err
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(op, status).Inc()
	StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

type countingReadCloser struct {
	io.ReadCloser
}

func (r *countingReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		StorageBytesTotal.WithLabelValues("get").Add(float64(n))
	}
	return n, err
}
