package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Content formats returned for section bodies.
const (
	FormatHTML = "html"
	FormatJSON = "json"
	FormatBoth = "both"
)

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

type Config struct {
	Port     string
	LogLevel string

	// Database
	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	// Auth and edge
	APIKey         string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Upload limits
	MaxUploadBytes int64

	// Outline and rendering
	MaxHeadingDepth      int
	ContentFormat        string
	RenderIncludeHeading bool

	// Listing
	DefaultPageSize int
	MaxPageSize     int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Job state
	JobTTL time.Duration

	// Tree cache
	RedisURL     string
	TreeCacheTTL time.Duration

	// Original file archive
	ArchiveBackend string
	ArchiveDir     string
	S3Bucket       string
	S3Prefix       string
	S3Endpoint     string
	AWSRegion      string
}

// LoadDotEnv reads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

func Load() Config {
	cfg := Config{
		Port:     envOr("PORT", "8090"),
		LogLevel: strings.ToLower(envOr("LOG_LEVEL", "info")),

		DBDriver:    strings.ToLower(envOr("DB_DRIVER", "sqlite")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  envOr("SQLITE_PATH", "docoutline.db"),

		APIKey:         os.Getenv("API_KEY"),
		CORSOrigins:    envList("CORS_ORIGINS", []string{"*"}),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 10),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		MaxHeadingDepth:      envInt("MAX_HEADING_DEPTH", 9),
		ContentFormat:        strings.ToLower(envOr("CONTENT_FORMAT", FormatBoth)),
		RenderIncludeHeading: envBool("RENDER_INCLUDE_HEADING", false),

		DefaultPageSize: envInt("DEFAULT_PAGE_SIZE", 10),
		MaxPageSize:     envInt("MAX_PAGE_SIZE", 100),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		RedisURL:     os.Getenv("REDIS_URL"),
		TreeCacheTTL: envDuration("TREE_CACHE_TTL", 10*time.Minute),

		ArchiveBackend: strings.ToLower(envOr("ARCHIVE_BACKEND", ArchiveNone)),
		ArchiveDir:     envOr("ARCHIVE_DIR", "uploads"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Prefix:       os.Getenv("S3_PREFIX"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		AWSRegion:      envOr("AWS_REGION", "us-east-1"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.MaxHeadingDepth < 1 || c.MaxHeadingDepth > 9 {
		return fmt.Errorf("MAX_HEADING_DEPTH must be between 1 and 9, got %d", c.MaxHeadingDepth)
	}
	if c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("DEFAULT_PAGE_SIZE (%d) exceeds MAX_PAGE_SIZE (%d)", c.DefaultPageSize, c.MaxPageSize)
	}
	switch c.ContentFormat {
	case FormatHTML, FormatJSON, FormatBoth:
	default:
		return fmt.Errorf("CONTENT_FORMAT must be html, json or both, got %q", c.ContentFormat)
	}
	switch c.ArchiveBackend {
	case ArchiveNone:
	case ArchiveLocal:
		if c.ArchiveDir == "" {
			return fmt.Errorf("ARCHIVE_DIR is required for the local archive")
		}
	case ArchiveS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 archive")
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be none, local or s3, got %q", c.ArchiveBackend)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
