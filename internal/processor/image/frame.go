package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"io"

	"github.com/framekeep/framekeep/internal/processor"
)

// DecodeDimensions reports pixel dimensions without decoding the full image.
func DecodeDimensions(data []byte) (image.Config, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, false
	}
	return cfg, true
}

// FrameCount reports the number of frames/pages in the source. Only GIF can
// carry more than one frame among the supported image formats; everything
// else that decodes is a single frame.
func FrameCount(data []byte) (int, error) {
	if isGIF(data) {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
		}
		return len(g.Image), nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return 0, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}
	return 1, nil
}

// IsAnimated is true iff the decoded frame count exceeds one.
func IsAnimated(data []byte) bool {
	n, err := FrameCount(data)
	return err == nil && n > 1
}

func isGIF(data []byte) bool {
	return len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a")
}

var _ processor.Processor = (*FirstFrameProcessor)(nil)

// FirstFrameProcessor decodes only the first frame of a multi-frame source
// and re-encodes it as a static JPEG. Single-frame sources pass through the
// same decode path unchanged.
type FirstFrameProcessor struct {
	config *processor.Config
}

func NewFirstFrameProcessor(cfg *processor.Config) *FirstFrameProcessor {
	if cfg == nil {
		cfg = processor.DefaultConfig()
	}
	return &FirstFrameProcessor{config: cfg}
}

func (p *FirstFrameProcessor) Name() string {
	return "first_frame"
}

func (p *FirstFrameProcessor) SupportedTypes() []string {
	return []string{
		"image/gif",
		"image/webp",
		"image/png",
		"image/jpeg",
	}
}

func (p *FirstFrameProcessor) Process(ctx context.Context, opts *processor.Options, input io.Reader) (*processor.Result, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}

	frames, err := FrameCount(data)
	if err != nil {
		return nil, err
	}

	// image.Decode yields exactly the first frame for GIF.
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrCorruptedFile, err)
	}

	quality := qualityOrDefault(opts, p.config.Quality)
	buf, err := encodeJPEG(img, quality)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &processor.Result{
		Data:        bytes.NewReader(buf.Bytes()),
		ContentType: "image/jpeg",
		Size:        int64(buf.Len()),
		Metadata: processor.ResultMetadata{
			Width:   bounds.Dx(),
			Height:  bounds.Dy(),
			Format:  "jpeg",
			Quality: quality,
			Frames:  frames,
		},
	}, nil
}
