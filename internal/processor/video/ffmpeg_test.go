package video

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
)

// TestIsVideoType tests content type routing.
func TestIsVideoType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"video/mp4", true},
		{"video/webm", true},
		{"video/quicktime", true},
		{"image/jpeg", false},
		{"application/octet-stream", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsVideoType(tt.contentType); got != tt.want {
			t.Errorf("IsVideoType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

// TestWriteSource tests temp file spooling and cleanup. No codec binary is
// required for this path.
func TestWriteSource(t *testing.T) {
	p := NewFFmpegExtractor(&Config{TempDir: t.TempDir()})

	data := []byte("fake video bytes")
	path, cleanup, err := p.WriteSource(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("WriteSource() error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read temp source: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Temp source = %q, want %q", got, data)
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Cleanup did not remove the temp source")
	}

	// Second call must be a no-op.
	cleanup()
}

// TestWriteSource_Empty tests that empty input is rejected.
func TestWriteSource_Empty(t *testing.T) {
	p := NewFFmpegExtractor(&Config{TempDir: t.TempDir()})

	_, _, err := p.WriteSource(bytes.NewReader(nil))
	if !errors.Is(err, ErrInvalidVideo) {
		t.Errorf("WriteSource() error = %v, want %v", err, ErrInvalidVideo)
	}
}

// TestGetDuration_MissingFile tests probe failure reporting.
func TestGetDuration_MissingFile(t *testing.T) {
	p := NewFFmpegExtractor(nil)
	if !p.IsAvailable() {
		t.Skip("ffmpeg/ffprobe not installed")
	}

	if _, ok := p.GetDuration(context.Background(), "/nonexistent/video.mp4"); ok {
		t.Error("GetDuration() = ok for missing file")
	}
}

// TestExtractFrame_InvalidSource tests extraction failure on garbage input.
func TestExtractFrame_InvalidSource(t *testing.T) {
	p := NewFFmpegExtractor(&Config{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", TempDir: t.TempDir()})
	if !p.IsAvailable() {
		t.Skip("ffmpeg/ffprobe not installed")
	}

	path, cleanup, err := p.WriteSource(bytes.NewReader([]byte("not a real container")))
	if err != nil {
		t.Fatalf("WriteSource() error: %v", err)
	}
	defer cleanup()

	if _, err := p.ExtractFrame(context.Background(), path, 0); !errors.Is(err, ErrExtractFailed) {
		t.Errorf("ExtractFrame() error = %v, want %v", err, ErrExtractFailed)
	}
}
