package video

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// FFmpegExtractor extracts single frames and probes durations through the
// ffmpeg/ffprobe binaries. Extracted frames are temp files the caller must
// remove after consuming them.
type FFmpegExtractor struct {
	config *Config
}

func NewFFmpegExtractor(cfg *Config) *FFmpegExtractor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &FFmpegExtractor{config: cfg}
}

// IsAvailable probes for the codec toolchain. Callers skip video handling
// entirely when it reports false.
func (p *FFmpegExtractor) IsAvailable() bool {
	if _, err := exec.LookPath(p.config.FFmpegPath); err != nil {
		return false
	}
	if _, err := exec.LookPath(p.config.FFprobePath); err != nil {
		return false
	}
	return true
}

// WriteSource spools a video stream to a temp file so ffmpeg can seek it.
// The returned cleanup removes the file and is safe to call more than once.
func (p *FFmpegExtractor) WriteSource(input io.Reader) (string, func(), error) {
	dir := p.config.TempDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		dir = ""
	}
	f, err := os.CreateTemp(dir, "video-src-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp source: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	written, err := io.Copy(f, input)
	closeErr := f.Close()
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write temp source: %w", err)
	}
	if closeErr != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp source: %w", closeErr)
	}
	if written == 0 {
		cleanup()
		return "", nil, fmt.Errorf("%w: empty input", ErrInvalidVideo)
	}
	return path, cleanup, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// GetDuration probes the container duration in seconds. A probe failure
// returns ok=false rather than an error; the caller falls back to a default
// frame timestamp.
func (p *FFmpegExtractor) GetDuration(ctx context.Context, path string) (float64, bool) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}

	cmd := exec.CommandContext(ctx, p.config.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, false
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, false
	}
	if probe.Format.Duration == "" {
		return 0, false
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

// ExtractFrame seeks to timestamp and extracts exactly one frame as JPEG.
// On failure it retries once at timestamp 0 before giving up. The returned
// path is a temp file owned by the caller.
func (p *FFmpegExtractor) ExtractFrame(ctx context.Context, path string, timestamp float64) (string, error) {
	framePath, err := p.extractAt(ctx, path, timestamp)
	if err == nil {
		return framePath, nil
	}
	if timestamp == 0 {
		return "", err
	}
	return p.extractAt(ctx, path, 0)
}

func (p *FFmpegExtractor) extractAt(ctx context.Context, path string, timestamp float64) (string, error) {
	outputPath := filepath.Join(filepath.Dir(path), fmt.Sprintf("frame-%s-%d.jpg", filepath.Base(path), int(timestamp*1000)))

	args := []string{
		"-ss", fmt.Sprintf("%.3f", timestamp),
		"-i", path,
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, p.config.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("%w: ffmpeg at %.3fs: %v, output: %s", ErrExtractFailed, timestamp, err, string(output))
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("%w: no frame produced at %.3fs", ErrExtractFailed, timestamp)
	}
	return outputPath, nil
}
