package processor

import (
	"context"
	"errors"
	"io"
)

var (
	ErrUnsupportedType  = errors.New("processor: unsupported media type")
	ErrProcessingFailed = errors.New("processor: processing failed")
	ErrInvalidConfig    = errors.New("processor: invalid configuration")
	ErrCorruptedFile    = errors.New("processor: source appears corrupted")
)

type Processor interface {
	Process(ctx context.Context, opts *Options, input io.Reader) (*Result, error)
	SupportedTypes() []string
	Name() string
}

type Options struct {
	// Width/Height bound the output. Thumbnails use both as a fixed square;
	// previews use the larger as a max dimension.
	Width   int
	Height  int
	Quality int
}

type Result struct {
	Data        io.Reader
	ContentType string
	Size        int64
	Metadata    ResultMetadata
}

type ResultMetadata struct {
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Format   string  `json:"format,omitempty"`
	Quality  int     `json:"quality,omitempty"`
	Frames   int     `json:"frames,omitempty"`
}

type Config struct {
	TempDir       string
	Quality       int
	ThumbnailSize int
	PreviewMaxDim int
}

func DefaultConfig() *Config {
	return &Config{
		TempDir:       "/tmp/framekeep",
		Quality:       85,
		ThumbnailSize: 320,
		PreviewMaxDim: 1600,
	}
}
