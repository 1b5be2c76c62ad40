package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/framekeep/framekeep/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ Storage = (*MinIOStorage)(nil)

type MinIOStorage struct {
	client *minio.Client
	config *Config
}

func NewMinIOStorage(cfg *Config) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOStorage{client: client, config: cfg}, nil
}

func (s *MinIOStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		log.Error("storage get failed", "bucket", bucket, "key", key, "error", err)
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}

	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNotFoundError(err) {
			log.Warn("storage object not found", "bucket", bucket, "key", key)
			return nil, ErrNotFound
		}
		log.Error("storage stat failed", "bucket", bucket, "key", key, "error", err)
		return nil, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}

	log.Debug("storage get started", "bucket", bucket, "key", key, "size", info.Size, "duration_ms", time.Since(start).Milliseconds())
	return obj, nil
}

func (s *MinIOStorage) PutObject(ctx context.Context, bucket, key string, reader io.Reader, contentType string, size int64) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	_, err := s.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		log.Error("storage put failed", "bucket", bucket, "key", key, "size", size, "error", err)
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}

	log.Debug("storage put completed", "bucket", bucket, "key", key, "size", size, "content_type", contentType, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *MinIOStorage) Delete(ctx context.Context, bucket, key string) error {
	log := logger.FromContext(ctx)

	err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		log.Error("storage delete failed", "bucket", bucket, "key", key, "error", err)
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}

	log.Debug("storage object deleted", "bucket", bucket, "key", key)
	return nil
}

func (s *MinIOStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("check exists %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func (s *MinIOStorage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.ListBuckets(ctx)
	if err != nil {
		return fmt.Errorf("storage health check: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey"
}
