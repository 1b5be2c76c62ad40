package video

import "errors"

var (
	ErrFFmpegNotFound  = errors.New("video: ffmpeg not found in PATH")
	ErrFFprobeNotFound = errors.New("video: ffprobe not found in PATH")
	ErrInvalidVideo    = errors.New("video: invalid or corrupted video file")
	ErrExtractFailed   = errors.New("video: frame extraction failed")
)

type Config struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string
}

func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		TempDir:     "/tmp/framekeep",
	}
}

// Supported video content types.
var SupportedVideoTypes = []string{
	"video/mp4",
	"video/webm",
	"video/quicktime",
	"video/x-msvideo",
	"video/x-matroska",
	"video/mpeg",
	"video/3gpp",
}

// IsVideoType checks if the content type is a supported video type.
func IsVideoType(contentType string) bool {
	for _, t := range SupportedVideoTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
