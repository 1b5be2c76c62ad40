package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/framekeep/framekeep/internal/asset"
	"github.com/framekeep/framekeep/internal/jobqueue"
	"github.com/framekeep/framekeep/internal/logger"
	"github.com/framekeep/framekeep/internal/processor"
	"github.com/framekeep/framekeep/internal/processor/image"
	"github.com/framekeep/framekeep/internal/processor/video"
	"github.com/framekeep/framekeep/internal/search"
	"github.com/framekeep/framekeep/internal/storage"
)

// Geocoder resolves coordinates to a place name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Vision runs inference over image bytes.
type Vision interface {
	DetectFaces(ctx context.Context, img io.Reader, contentType string) (int, error)
	DetectObjects(ctx context.Context, img io.Reader, contentType string, minConfidence float64) ([]string, error)
}

// Indexer writes search documents.
type Indexer interface {
	Index(ctx context.Context, doc search.Document) error
}

// FrameExtractor spools a video source and pulls single frames from it.
type FrameExtractor interface {
	IsAvailable() bool
	WriteSource(input io.Reader) (string, func(), error)
	GetDuration(ctx context.Context, path string) (float64, bool)
	ExtractFrame(ctx context.Context, path string, timestamp float64) (string, error)
}

// Dependencies bundles everything the handlers share.
type Dependencies struct {
	Assets   asset.Repository
	Storage  storage.Storage
	Registry *processor.Registry
	Video    FrameExtractor
	Geocoder Geocoder
	Vision   Vision
	Indexer  Indexer
	Planner  *Planner

	// DerivativeBucket receives thumbnails and previews. Originals stay in
	// the bucket recorded on the asset row.
	DerivativeBucket string
	MinConfidence    float64
}

// RegisterHandlers binds every job type to its handler.
func RegisterHandlers(r *Router, deps *Dependencies) {
	r.Register(jobqueue.JobTypeExtractMetadata, ExtractMetadataHandler(deps))
	r.Register(jobqueue.JobTypeGenerateThumbnail, GenerateThumbnailHandler(deps))
	r.Register(jobqueue.JobTypeGeneratePreview, GeneratePreviewHandler(deps))
	r.Register(jobqueue.JobTypeReverseGeocode, ReverseGeocodeHandler(deps))
	r.Register(jobqueue.JobTypeDetectFaces, DetectFacesHandler(deps))
	r.Register(jobqueue.JobTypeDetectObjects, DetectObjectsHandler(deps))
	r.Register(jobqueue.JobTypeIndexSearch, IndexSearchHandler(deps))
}

// ExtractMetadataHandler reads dimensions, duration, capture time and GPS
// coordinates from the original and records them on the asset.
func ExtractMetadataHandler(deps *Dependencies) Handler {
	return func(ec *ExecContext) (json.RawMessage, error) {
		log := logger.FromContext(ec)
		a, err := loadAsset(ec, deps)
		if err != nil {
			return nil, err
		}

		reader, err := deps.Storage.GetObject(ec, a.StorageBucket, a.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("download original %s: %w", a.StorageKey, err)
		}
		defer closeSafely(log, reader, "original")

		var update asset.MetadataUpdate
		var result json.RawMessage

		if video.IsVideoType(a.ContentType) {
			update, result, err = extractVideoMetadata(ec, deps, reader)
		} else {
			update, result, err = extractImageMetadata(ec, deps, reader)
		}
		if err != nil {
			return nil, err
		}

		if err := deps.Assets.ApplyMetadata(ec, a.ID, update); err != nil {
			return nil, fmt.Errorf("persist metadata: %w", err)
		}
		if err := deps.Assets.AdvanceStatus(ec, a.ID, asset.StatusUploaded, asset.StatusMetadataExtracted); err != nil {
			return nil, fmt.Errorf("advance status: %w", err)
		}
		if deps.Planner != nil {
			deps.Planner.PlanAfter(ec, a, ec.Job.Type)
		}
		return result, nil
	}
}

func extractImageMetadata(ec *ExecContext, deps *Dependencies, reader io.Reader) (asset.MetadataUpdate, json.RawMessage, error) {
	proc, err := deps.Registry.GetOrError("metadata")
	if err != nil {
		return asset.MetadataUpdate{}, nil, jobqueue.Permanent(err)
	}
	res, err := proc.Process(ec, &processor.Options{}, reader)
	if err != nil {
		return asset.MetadataUpdate{}, nil, jobqueue.Permanent(fmt.Errorf("extract image metadata: %w", err))
	}
	raw, err := io.ReadAll(res.Data)
	if err != nil {
		return asset.MetadataUpdate{}, nil, fmt.Errorf("read metadata result: %w", err)
	}
	var meta image.ImageMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return asset.MetadataUpdate{}, nil, fmt.Errorf("decode metadata result: %w", err)
	}

	w, h, frames := int32(meta.Width), int32(meta.Height), int32(meta.Frames)
	return asset.MetadataUpdate{
		Width:     &w,
		Height:    &h,
		Frames:    &frames,
		TakenAt:   meta.TakenAt,
		Latitude:  meta.Latitude,
		Longitude: meta.Longitude,
	}, raw, nil
}

type videoMetadata struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	Format   string  `json:"format"`
}

func extractVideoMetadata(ec *ExecContext, deps *Dependencies, reader io.Reader) (asset.MetadataUpdate, json.RawMessage, error) {
	if deps.Video == nil || !deps.Video.IsAvailable() {
		return asset.MetadataUpdate{}, nil, video.ErrFFmpegNotFound
	}

	path, cleanup, err := deps.Video.WriteSource(reader)
	if err != nil {
		return asset.MetadataUpdate{}, nil, fmt.Errorf("spool video: %w", err)
	}
	defer cleanup()

	var update asset.MetadataUpdate
	meta := videoMetadata{Format: "video"}
	if dur, ok := deps.Video.GetDuration(ec, path); ok {
		meta.Duration = dur
		update.Duration = &dur
	}

	framePath, err := deps.Video.ExtractFrame(ec, path, 0)
	if err != nil {
		return asset.MetadataUpdate{}, nil, jobqueue.Permanent(fmt.Errorf("probe video frame: %w", err))
	}
	defer func() { _ = os.Remove(framePath) }()

	frame, err := os.ReadFile(framePath)
	if err != nil {
		return asset.MetadataUpdate{}, nil, fmt.Errorf("read probe frame: %w", err)
	}
	if cfg, ok := image.DecodeDimensions(frame); ok {
		w, h := int32(cfg.Width), int32(cfg.Height)
		meta.Width, meta.Height = cfg.Width, cfg.Height
		update.Width, update.Height = &w, &h
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return asset.MetadataUpdate{}, nil, fmt.Errorf("encode metadata result: %w", err)
	}
	return update, raw, nil
}

// GenerateThumbnailHandler produces the square cover-crop derivative and
// records its key. When both derivatives exist the asset advances to
// derivatives_ready.
func GenerateThumbnailHandler(deps *Dependencies) Handler {
	return func(ec *ExecContext) (json.RawMessage, error) {
		var payload ThumbnailPayload
		if err := ec.Job.UnmarshalPayload(&payload); err != nil {
			return nil, jobqueue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}
		opts := &processor.Options{Width: payload.Size, Height: payload.Size, Quality: payload.Quality}
		return generateDerivative(ec, deps, "thumbnail", "thumb", opts, deps.Assets.SetThumbnailKey)
	}
}

// GeneratePreviewHandler produces the bounded aspect-preserving derivative.
func GeneratePreviewHandler(deps *Dependencies) Handler {
	return func(ec *ExecContext) (json.RawMessage, error) {
		var payload PreviewPayload
		if err := ec.Job.UnmarshalPayload(&payload); err != nil {
			return nil, jobqueue.Permanent(fmt.Errorf("invalid payload: %w", err))
		}
		opts := &processor.Options{Width: payload.MaxDimension, Height: payload.MaxDimension, Quality: payload.Quality}
		return generateDerivative(ec, deps, "preview", "preview", opts, deps.Assets.SetPreviewKey)
	}
}

func generateDerivative(ec *ExecContext, deps *Dependencies, procName, kind string, opts *processor.Options, setKey func(context.Context, uuid.UUID, string) error) (json.RawMessage, error) {
	log := logger.FromContext(ec)
	a, err := loadAsset(ec, deps)
	if err != nil {
		return nil, err
	}

	reader, err := deps.Storage.GetObject(ec, a.StorageBucket, a.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download original %s: %w", a.StorageKey, err)
	}
	defer closeSafely(log, reader, "original")

	src := io.Reader(reader)
	if video.IsVideoType(a.ContentType) {
		frame, release, err := videoFrame(ec, deps, reader)
		if err != nil {
			return nil, err
		}
		defer release()
		src = frame
	}

	proc, err := deps.Registry.GetOrError(procName)
	if err != nil {
		return nil, jobqueue.Permanent(err)
	}
	res, err := proc.Process(ec, opts, src)
	if err != nil {
		return nil, jobqueue.Permanent(fmt.Errorf("process %s: %w", kind, err))
	}

	key := derivativeKey(a.ID, kind)
	if err := deps.Storage.PutObject(ec, deps.DerivativeBucket, key, res.Data, res.ContentType, res.Size); err != nil {
		return nil, fmt.Errorf("upload %s: %w", kind, err)
	}

	if err := setKey(ec, a.ID, key); err != nil {
		return nil, fmt.Errorf("record %s key: %w", kind, err)
	}

	// Advance only once both derivatives are present; whichever of the two
	// jobs lands second performs the transition.
	current, err := deps.Assets.Get(ec, a.ID)
	if err != nil {
		return nil, fmt.Errorf("reload asset: %w", err)
	}
	if current.HasDerivatives() {
		if err := deps.Assets.AdvanceStatus(ec, a.ID, asset.StatusMetadataExtracted, asset.StatusDerivativesReady); err != nil {
			return nil, fmt.Errorf("advance status: %w", err)
		}
	}
	if deps.Planner != nil {
		deps.Planner.PlanAfter(ec, current, ec.Job.Type)
	}

	return marshalResult(DerivativeResult{
		StorageKey: key,
		Width:      res.Metadata.Width,
		Height:     res.Metadata.Height,
		SizeBytes:  res.Size,
	})
}

// videoFrame extracts a representative frame from a video source, seeking to
// min(1s, 10% of duration) when the duration is known.
func videoFrame(ec *ExecContext, deps *Dependencies, src io.Reader) (io.Reader, func(), error) {
	if deps.Video == nil || !deps.Video.IsAvailable() {
		return nil, nil, video.ErrFFmpegNotFound
	}
	path, cleanup, err := deps.Video.WriteSource(src)
	if err != nil {
		return nil, nil, fmt.Errorf("spool video: %w", err)
	}
	defer cleanup()

	var ts float64
	if dur, ok := deps.Video.GetDuration(ec, path); ok {
		ts = math.Min(1, dur*0.1)
	}
	framePath, err := deps.Video.ExtractFrame(ec, path, ts)
	if err != nil {
		return nil, nil, jobqueue.Permanent(fmt.Errorf("extract frame: %w", err))
	}
	data, err := os.ReadFile(framePath)
	release := func() { _ = os.Remove(framePath) }
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("read frame: %w", err)
	}
	return bytes.NewReader(data), release, nil
}

func loadAsset(ec *ExecContext, deps *Dependencies) (*asset.Asset, error) {
	a, err := deps.Assets.Get(ec, ec.Job.AssetID)
	if err != nil {
		if errors.Is(err, asset.ErrNotFound) {
			return nil, jobqueue.Permanent(fmt.Errorf("asset %s: %w", ec.Job.AssetID, err))
		}
		return nil, fmt.Errorf("load asset %s: %w", ec.Job.AssetID, err)
	}
	return a, nil
}

func derivativeKey(assetID uuid.UUID, kind string) string {
	return fmt.Sprintf("derivatives/%s/%s.jpg", assetID, kind)
}

func marshalResult(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}

func closeSafely(log *slog.Logger, c io.Closer, what string) {
	if err := c.Close(); err != nil {
		log.Warn("close failed", "what", what, "error", err)
	}
}
