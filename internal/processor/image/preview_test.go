package image

import (
	"context"
	"errors"
	_ "image/jpeg"
	"io"
	"testing"

	"github.com/framekeep/framekeep/internal/processor"
)

// TestPreviewProcessor_Name tests the processor name.
func TestPreviewProcessor_Name(t *testing.T) {
	p := NewPreviewProcessor(nil)

	if got := p.Name(); got != "preview" {
		t.Errorf("Name() = %q, want %q", got, "preview")
	}
}

// TestPreviewProcessor_Process tests that results fit within the max
// dimension, preserve aspect ratio and are never upscaled.
func TestPreviewProcessor_Process(t *testing.T) {
	tests := []struct {
		name        string
		input       func() io.Reader
		opts        *processor.Options
		wantWidth   int
		wantHeight  int
		wantErr     bool
		wantErrType error
	}{
		{
			name:       "landscape fits width",
			input:      createLandscapeImage, // 800x400
			opts:       &processor.Options{Width: 400, Quality: 80},
			wantWidth:  400,
			wantHeight: 200,
		},
		{
			name:       "portrait fits height",
			input:      createPortraitImage, // 400x800
			opts:       &processor.Options{Width: 400, Quality: 80},
			wantWidth:  200,
			wantHeight: 400,
		},
		{
			name:       "large source bounded by default max",
			input:      createLargeImage, // 2400x1800
			opts:       &processor.Options{},
			wantWidth:  1600,
			wantHeight: 1200,
		},
		{
			name:       "small source is not upscaled",
			input:      createSmallImage, // 100x100
			opts:       &processor.Options{Width: 1600, Quality: 80},
			wantWidth:  100,
			wantHeight: 100,
		},
		{
			name:        "invalid image data",
			input:       createInvalidImage,
			opts:        &processor.Options{Width: 400},
			wantErr:     true,
			wantErrType: processor.ErrCorruptedFile,
		},
		{
			name:        "empty input",
			input:       createEmptyReader,
			opts:        &processor.Options{Width: 400},
			wantErr:     true,
			wantErrType: processor.ErrCorruptedFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreviewProcessor(nil)

			result, err := p.Process(context.Background(), tt.opts, tt.input())

			if tt.wantErr {
				if err == nil {
					t.Fatal("Process() error = nil, want error")
				}
				if tt.wantErrType != nil && !errors.Is(err, tt.wantErrType) {
					t.Errorf("Process() error = %v, want %v", err, tt.wantErrType)
				}
				return
			}

			if err != nil {
				t.Fatalf("Process() unexpected error: %v", err)
			}

			width, height, err := getImageDimensions(result.Data)
			if err != nil {
				t.Fatalf("Failed to decode result: %v", err)
			}
			if width != tt.wantWidth || height != tt.wantHeight {
				t.Errorf("Result = %dx%d, want %dx%d", width, height, tt.wantWidth, tt.wantHeight)
			}

			if result.ContentType != "image/jpeg" {
				t.Errorf("Result ContentType = %q, want %q", result.ContentType, "image/jpeg")
			}
			if result.Metadata.Width != tt.wantWidth || result.Metadata.Height != tt.wantHeight {
				t.Errorf("Result Metadata = %dx%d, want %dx%d",
					result.Metadata.Width, result.Metadata.Height, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

// TestPreviewProcessor_Process_PNG tests that PNG input is re-encoded as JPEG.
func TestPreviewProcessor_Process_PNG(t *testing.T) {
	p := NewPreviewProcessor(nil)

	result, err := p.Process(context.Background(),
		&processor.Options{Width: 400, Quality: 80}, createTestPNG(900, 600))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if result.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want %q", result.ContentType, "image/jpeg")
	}

	width, height, err := getImageDimensions(result.Data)
	if err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if width != 400 || height > 400 {
		t.Errorf("Result = %dx%d, want 400x<=400", width, height)
	}
}
