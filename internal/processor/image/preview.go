package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/framekeep/framekeep/internal/processor"
)

var _ processor.Processor = (*PreviewProcessor)(nil)

// PreviewProcessor resizes the source to fit within a max dimension while
// preserving aspect ratio. It never upscales: sources already within bounds
// are re-encoded at their original dimensions.
type PreviewProcessor struct {
	config *processor.Config
}

func NewPreviewProcessor(cfg *processor.Config) *PreviewProcessor {
	if cfg == nil {
		cfg = processor.DefaultConfig()
	}
	return &PreviewProcessor{config: cfg}
}

func (p *PreviewProcessor) Name() string {
	return "preview"
}

func (p *PreviewProcessor) SupportedTypes() []string {
	return []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
	}
}

func (p *PreviewProcessor) Process(ctx context.Context, opts *processor.Options, input io.Reader) (*processor.Result, error) {
	maxDim := p.config.PreviewMaxDim
	if opts != nil && opts.Width > 0 {
		maxDim = opts.Width
	}
	if maxDim <= 0 {
		return nil, fmt.Errorf("%w: preview max dimension is required", processor.ErrInvalidConfig)
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

	bounds := img.Bounds()
	resized := img
	if bounds.Dx() > maxDim || bounds.Dy() > maxDim {
		resized = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	actual := resized.Bounds()
	quality := qualityOrDefault(opts, p.config.Quality)
	buf, err := encodeJPEG(resized, quality)
	if err != nil {
		return nil, err
	}

	return &processor.Result{
		Data:        bytes.NewReader(buf.Bytes()),
		ContentType: "image/jpeg",
		Size:        int64(buf.Len()),
		Metadata: processor.ResultMetadata{
			Width:   actual.Dx(),
			Height:  actual.Dy(),
			Format:  "jpeg",
			Quality: quality,
		},
	}, nil
}
