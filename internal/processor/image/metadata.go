package image

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"time"

	"github.com/framekeep/framekeep/internal/processor"
)

type MetadataProcessor struct {
	cfg *processor.Config
}

func NewMetadataProcessor(cfg *processor.Config) *MetadataProcessor {
	if cfg == nil {
		cfg = processor.DefaultConfig()
	}
	return &MetadataProcessor{cfg: cfg}
}

func (p *MetadataProcessor) Name() string {
	return "metadata"
}

func (p *MetadataProcessor) SupportedTypes() []string {
	return []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
	}
}

// ImageMetadata is the extract_metadata result for image assets. GPS and
// capture time come from EXIF when present.
type ImageMetadata struct {
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Format    string     `json:"format"`
	Frames    int        `json:"frames"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	TakenAt   *time.Time `json:"taken_at,omitempty"`
}

func (p *MetadataProcessor) Process(ctx context.Context, opts *processor.Options, input io.Reader) (*processor.Result, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return nil, processor.ErrCorruptedFile
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, processor.ErrCorruptedFile
	}

	frames, err := FrameCount(data)
	if err != nil {
		frames = 1
	}

	exif := ParseExif(data)
	meta := ImageMetadata{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		Frames:    frames,
		Latitude:  exif.Latitude,
		Longitude: exif.Longitude,
		TakenAt:   exif.TakenAt,
	}

	jsonData, err := json.Marshal(meta)
	if err != nil {
		return nil, processor.ErrProcessingFailed
	}

	return &processor.Result{
		Data:        bytes.NewReader(jsonData),
		ContentType: "application/json",
		Size:        int64(len(jsonData)),
		Metadata: processor.ResultMetadata{
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: format,
			Frames: frames,
		},
	}, nil
}
