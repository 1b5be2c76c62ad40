package asset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the slice of asset persistence the job handlers need.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Asset, error)
	ApplyMetadata(ctx context.Context, id uuid.UUID, update MetadataUpdate) error
	SetThumbnailKey(ctx context.Context, id uuid.UUID, key string) error
	SetPreviewKey(ctx context.Context, id uuid.UUID, key string) error
	SetPlace(ctx context.Context, id uuid.UUID, place string) error
	SetFaceCount(ctx context.Context, id uuid.UUID, count int32) error
	SetLabels(ctx context.Context, id uuid.UUID, labels []string) error
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	MarkError(ctx context.Context, id uuid.UUID) error
}

const assetColumns = `id, storage_bucket, storage_key, content_type, size_bytes,
	width, height, duration, frames, taken_at,
	latitude, longitude, place, face_count, labels,
	thumbnail_key, preview_key, status, created_at, updated_at`

// PGRepo persists assets in Postgres via pgx.
type PGRepo struct {
	pool *pgxpool.Pool
}

func NewPGRepo(pool *pgxpool.Pool) *PGRepo {
	return &PGRepo{pool: pool}
}

func (r *PGRepo) Get(ctx context.Context, id uuid.UUID) (*Asset, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM media_assets WHERE id = $1`, id)
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

func (r *PGRepo) ApplyMetadata(ctx context.Context, id uuid.UUID, u MetadataUpdate) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE media_assets SET
			width      = COALESCE($2, width),
			height     = COALESCE($3, height),
			duration   = COALESCE($4, duration),
			frames     = COALESCE($5, frames),
			taken_at   = COALESCE($6, taken_at),
			latitude   = COALESCE($7, latitude),
			longitude  = COALESCE($8, longitude),
			updated_at = now()
		WHERE id = $1`,
		id, u.Width, u.Height, u.Duration, u.Frames, u.TakenAt, u.Latitude, u.Longitude)
	if err != nil {
		return fmt.Errorf("apply metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) SetThumbnailKey(ctx context.Context, id uuid.UUID, key string) error {
	return r.setColumn(ctx, id, "thumbnail_key", key)
}

func (r *PGRepo) SetPreviewKey(ctx context.Context, id uuid.UUID, key string) error {
	return r.setColumn(ctx, id, "preview_key", key)
}

func (r *PGRepo) SetPlace(ctx context.Context, id uuid.UUID, place string) error {
	return r.setColumn(ctx, id, "place", place)
}

func (r *PGRepo) SetFaceCount(ctx context.Context, id uuid.UUID, count int32) error {
	return r.setColumn(ctx, id, "face_count", count)
}

func (r *PGRepo) SetLabels(ctx context.Context, id uuid.UUID, labels []string) error {
	return r.setColumn(ctx, id, "labels", labels)
}

func (r *PGRepo) setColumn(ctx context.Context, id uuid.UUID, column string, value any) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE media_assets SET `+column+` = $2, updated_at = now() WHERE id = $1`,
		id, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceStatus moves the asset forward on the pipeline ladder with a
// compare-and-set so concurrent handlers never regress it. A row already
// past `from` is treated as success.
func (r *PGRepo) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	if !CanAdvance(from, to) {
		return ErrRegression
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE media_assets SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("advance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if CanAdvance(to, current.Status) || current.Status == to {
			return nil
		}
		return ErrRegression
	}
	return nil
}

func (r *PGRepo) MarkError(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE media_assets SET status = $2, updated_at = now() WHERE id = $1`,
		id, StatusError)
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var a Asset
	err := row.Scan(
		&a.ID, &a.StorageBucket, &a.StorageKey, &a.ContentType, &a.SizeBytes,
		&a.Width, &a.Height, &a.Duration, &a.Frames, &a.TakenAt,
		&a.Latitude, &a.Longitude, &a.Place, &a.FaceCount, &a.Labels,
		&a.ThumbnailKey, &a.PreviewKey, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
