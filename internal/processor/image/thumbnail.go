package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/framekeep/framekeep/internal/processor"
	_ "golang.org/x/image/webp"
)

var _ processor.Processor = (*ThumbnailProcessor)(nil)

// ThumbnailProcessor produces a fixed square cover-crop of the source,
// auto-oriented from EXIF and center-anchored.
type ThumbnailProcessor struct {
	config *processor.Config
}

func NewThumbnailProcessor(cfg *processor.Config) *ThumbnailProcessor {
	if cfg == nil {
		cfg = processor.DefaultConfig()
	}
	return &ThumbnailProcessor{config: cfg}
}

func (p *ThumbnailProcessor) Name() string {
	return "thumbnail"
}

func (p *ThumbnailProcessor) SupportedTypes() []string {
	return []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
	}
}

func (p *ThumbnailProcessor) Process(ctx context.Context, opts *processor.Options, input io.Reader) (*processor.Result, error) {
	size := p.config.ThumbnailSize
	if opts != nil && opts.Width > 0 {
		size = opts.Width
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: thumbnail size is required", processor.ErrInvalidConfig)
	}

	data, err := io.ReadAll(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}

	img = autoOrient(img, ParseExif(data).Orientation)
	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	quality := qualityOrDefault(opts, p.config.Quality)
	buf, err := encodeJPEG(thumb, quality)
	if err != nil {
		return nil, err
	}

	return &processor.Result{
		Data:        bytes.NewReader(buf.Bytes()),
		ContentType: "image/jpeg",
		Size:        int64(buf.Len()),
		Metadata: processor.ResultMetadata{
			Width:   size,
			Height:  size,
			Format:  "jpeg",
			Quality: quality,
		},
	}, nil
}

func encodeJPEG(img image.Image, quality int) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return &buf, nil
}

func qualityOrDefault(opts *processor.Options, defaultQuality int) int {
	if opts != nil && opts.Quality > 0 && opts.Quality <= 100 {
		return opts.Quality
	}
	return defaultQuality
}
