package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	MinIOEndpoint    string
	MinIOAccessKey   string
	MinIOSecretKey   string
	MinIOUseSSL      bool
	MinIORegion      string
	DerivativeBucket string

	GeocodeBaseURL string
	GeocodeTimeout time.Duration
	VisionBaseURL  string
	VisionTimeout  time.Duration
	MinConfidence  float64

	FFmpegPath  string
	FFprobePath string
	TempDir     string

	QueuesFile      string
	ShutdownTimeout time.Duration
	StuckJobWindow  time.Duration
	RetryBaseDelay  time.Duration
	RetryCapDelay   time.Duration
	EnqueueGuardTTL time.Duration

	MetricsPort int

	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	if cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}

	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	if cfg.MinIOAccessKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY is required")
	}

	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	if cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("MINIO_SECRET_KEY is required")
	}

	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")
	cfg.DerivativeBucket = getEnvString("DERIVATIVE_BUCKET", "derivatives")

	cfg.GeocodeBaseURL = getEnvString("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org")
	cfg.GeocodeTimeout, err = getEnvDuration("GEOCODE_TIMEOUT", "10s")
	if err != nil {
		return nil, fmt.Errorf("invalid GEOCODE_TIMEOUT: %w", err)
	}
	cfg.VisionBaseURL = getEnvString("VISION_BASE_URL", "http://localhost:8500")
	cfg.VisionTimeout, err = getEnvDuration("VISION_TIMEOUT", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid VISION_TIMEOUT: %w", err)
	}
	cfg.MinConfidence = getEnvFloat("VISION_MIN_CONFIDENCE", 0.5)

	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnvString("FFPROBE_PATH", "ffprobe")
	cfg.TempDir = getEnvString("TEMP_DIR", os.TempDir())

	cfg.QueuesFile = os.Getenv("QUEUES_FILE")
	cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.StuckJobWindow, err = getEnvDuration("STUCK_JOB_WINDOW", "15m")
	if err != nil {
		return nil, fmt.Errorf("invalid STUCK_JOB_WINDOW: %w", err)
	}
	cfg.RetryBaseDelay, err = getEnvDuration("RETRY_BASE_DELAY", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_BASE_DELAY: %w", err)
	}
	cfg.RetryCapDelay, err = getEnvDuration("RETRY_CAP_DELAY", "30m")
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_CAP_DELAY: %w", err)
	}
	cfg.EnqueueGuardTTL, err = getEnvDuration("ENQUEUE_GUARD_TTL", "15m")
	if err != nil {
		return nil, fmt.Errorf("invalid ENQUEUE_GUARD_TTL: %w", err)
	}

	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9090)

	cfg.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.TracingEndpoint = getEnvString("TRACING_ENDPOINT", "localhost:4317")
	cfg.TracingSampleRate = getEnvFloat("TRACING_SAMPLE_RATE", 1.0)

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}
