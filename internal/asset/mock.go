package asset

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu     sync.Mutex
	assets map[uuid.UUID]*Asset

	GetErr    error
	UpdateErr error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{assets: make(map[uuid.UUID]*Asset)}
}

// Put seeds an asset. If the status is empty it starts at StatusUploaded.
func (r *MemoryRepo) Put(a *Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status == "" {
		a.Status = StatusUploaded
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = a.CreatedAt
	r.assets[a.ID] = copyAsset(a)
}

func (r *MemoryRepo) Get(_ context.Context, id uuid.UUID) (*Asset, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAsset(a), nil
}

func (r *MemoryRepo) ApplyMetadata(_ context.Context, id uuid.UUID, u MetadataUpdate) error {
	return r.update(id, func(a *Asset) {
		if u.Width != nil {
			a.Width = u.Width
		}
		if u.Height != nil {
			a.Height = u.Height
		}
		if u.Duration != nil {
			a.Duration = u.Duration
		}
		if u.Frames != nil {
			a.Frames = u.Frames
		}
		if u.TakenAt != nil {
			a.TakenAt = u.TakenAt
		}
		if u.Latitude != nil {
			a.Latitude = u.Latitude
		}
		if u.Longitude != nil {
			a.Longitude = u.Longitude
		}
	})
}

func (r *MemoryRepo) SetThumbnailKey(_ context.Context, id uuid.UUID, key string) error {
	return r.update(id, func(a *Asset) { a.ThumbnailKey = &key })
}

func (r *MemoryRepo) SetPreviewKey(_ context.Context, id uuid.UUID, key string) error {
	return r.update(id, func(a *Asset) { a.PreviewKey = &key })
}

func (r *MemoryRepo) SetPlace(_ context.Context, id uuid.UUID, place string) error {
	return r.update(id, func(a *Asset) { a.Place = &place })
}

func (r *MemoryRepo) SetFaceCount(_ context.Context, id uuid.UUID, count int32) error {
	return r.update(id, func(a *Asset) { a.FaceCount = &count })
}

func (r *MemoryRepo) SetLabels(_ context.Context, id uuid.UUID, labels []string) error {
	return r.update(id, func(a *Asset) { a.Labels = append([]string(nil), labels...) })
}

func (r *MemoryRepo) AdvanceStatus(_ context.Context, id uuid.UUID, from, to Status) error {
	if !CanAdvance(from, to) {
		return ErrRegression
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != from {
		if a.Status == to || CanAdvance(to, a.Status) {
			return nil
		}
		return ErrRegression
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepo) MarkError(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(a *Asset) { a.Status = StatusError })
}

func (r *MemoryRepo) update(id uuid.UUID, fn func(*Asset)) error {
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

func copyAsset(a *Asset) *Asset {
	dup := *a
	if a.Labels != nil {
		dup.Labels = append([]string(nil), a.Labels...)
	}
	return &dup
}
