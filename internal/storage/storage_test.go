package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// TestMemoryStorage_PutObject tests object uploads.
func TestMemoryStorage_PutObject(t *testing.T) {
	tests := []struct {
		name        string
		bucket      string
		key         string
		content     string
		contentType string
		wantErr     error
	}{
		{
			name:        "upload jpeg",
			bucket:      "media",
			key:         "originals/photo.jpg",
			content:     "\xff\xd8\xff\xe0binary data",
			contentType: "image/jpeg",
		},
		{
			name:        "upload nested key",
			bucket:      "derivatives",
			key:         "derivatives/abc/thumb.jpg",
			content:     "bytes",
			contentType: "image/jpeg",
		},
		{
			name:        "empty key rejected",
			bucket:      "media",
			key:         "",
			content:     "content",
			contentType: "text/plain",
			wantErr:     ErrInvalidKey,
		},
		{
			name:        "empty content allowed",
			bucket:      "media",
			key:         "empty.bin",
			content:     "",
			contentType: "application/octet-stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStorage()
			ctx := context.Background()

			err := s.PutObject(ctx, tt.bucket, tt.key, strings.NewReader(tt.content),
				tt.contentType, int64(len(tt.content)))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PutObject() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			data, exists := s.ObjectBytes(tt.bucket, tt.key)
			if !exists {
				t.Fatal("PutObject() object not stored")
			}
			if string(data) != tt.content {
				t.Errorf("Stored content = %q, want %q", data, tt.content)
			}
			if ct, _ := s.ObjectContentType(tt.bucket, tt.key); ct != tt.contentType {
				t.Errorf("Stored content type = %q, want %q", ct, tt.contentType)
			}
		})
	}
}

// TestMemoryStorage_GetObject tests object downloads.
func TestMemoryStorage_GetObject(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	content := "hello world"
	if err := s.PutObject(ctx, "media", "file.txt", strings.NewReader(content), "text/plain", int64(len(content))); err != nil {
		t.Fatalf("PutObject() error: %v", err)
	}

	r, err := s.GetObject(ctx, "media", "file.txt")
	if err != nil {
		t.Fatalf("GetObject() error: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(data) != content {
		t.Errorf("GetObject() = %q, want %q", data, content)
	}

	if _, err := s.GetObject(ctx, "media", "missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetObject() error = %v, want %v", err, ErrNotFound)
	}
	// Buckets namespace keys.
	if _, err := s.GetObject(ctx, "other", "file.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetObject() across buckets error = %v, want %v", err, ErrNotFound)
	}
}

// TestMemoryStorage_DeleteAndExists tests removal and existence checks.
func TestMemoryStorage_DeleteAndExists(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	if err := s.PutObject(ctx, "media", "file.txt", strings.NewReader("x"), "text/plain", 1); err != nil {
		t.Fatalf("PutObject() error: %v", err)
	}

	exists, err := s.Exists(ctx, "media", "file.txt")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v, want true, nil", exists, err)
	}

	if err := s.Delete(ctx, "media", "file.txt"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	exists, err = s.Exists(ctx, "media", "file.txt")
	if err != nil || exists {
		t.Errorf("Exists() after delete = %v, %v, want false, nil", exists, err)
	}

	// Deleting a missing object is a no-op.
	if err := s.Delete(ctx, "media", "missing.txt"); err != nil {
		t.Errorf("Delete() of missing object error: %v", err)
	}
}

// TestMemoryStorage_ContextCanceled tests that operations honor context.
func TestMemoryStorage_ContextCanceled(t *testing.T) {
	s := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.PutObject(ctx, "media", "k", strings.NewReader("x"), "text/plain", 1); err == nil {
		t.Error("PutObject() error = nil with canceled context")
	}
	if _, err := s.GetObject(ctx, "media", "k"); err == nil {
		t.Error("GetObject() error = nil with canceled context")
	}
	if err := s.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() error = nil with canceled context")
	}
}

// TestMemoryStorage_ErrorInjection tests the failure hooks.
func TestMemoryStorage_ErrorInjection(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	boom := errors.New("boom")
	s.PutErr = boom
	if err := s.PutObject(ctx, "media", "k", strings.NewReader("x"), "text/plain", 1); !errors.Is(err, boom) {
		t.Errorf("PutObject() error = %v, want %v", err, boom)
	}

	s.PutErr = nil
	s.GetErr = boom
	if _, err := s.GetObject(ctx, "media", "k"); !errors.Is(err, boom) {
		t.Errorf("GetObject() error = %v, want %v", err, boom)
	}
}
