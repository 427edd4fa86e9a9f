package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, int64(52428800), cfg.MaxUploadBytes)
	assert.Equal(t, 9, cfg.MaxHeadingDepth)
	assert.Equal(t, 10, cfg.DefaultPageSize)
	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.Equal(t, FormatBoth, cfg.ContentFormat)
	assert.Equal(t, ArchiveNone, cfg.ArchiveBackend)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/docs")
	t.Setenv("MAX_HEADING_DEPTH", "4")
	t.Setenv("CONTENT_FORMAT", "json")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("TREE_CACHE_TTL", "30s")
	t.Setenv("RENDER_INCLUDE_HEADING", "true")
	t.Setenv("WORKER_COUNT", "-1")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 4, cfg.MaxHeadingDepth)
	assert.Equal(t, FormatJSON, cfg.ContentFormat)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0.001)
	assert.Equal(t, 30*time.Second, cfg.TreeCacheTTL)
	assert.True(t, cfg.RenderIncludeHeading)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"postgres without url", func(c *Config) { c.DBDriver = "postgres"; c.DatabaseURL = "" }},
		{"depth too deep", func(c *Config) { c.MaxHeadingDepth = 10 }},
		{"depth zero", func(c *Config) { c.MaxHeadingDepth = 0 }},
		{"default page over max", func(c *Config) { c.DefaultPageSize = 200 }},
		{"bad content format", func(c *Config) { c.ContentFormat = "xml" }},
		{"bad archive", func(c *Config) { c.ArchiveBackend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.ArchiveBackend = ArchiveS3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DOCOUTLINE_TEST_KEY=from-file\nPORT=1234\n"), 0o600))
	t.Setenv("PORT", "5555")
	t.Setenv("DOCOUTLINE_TEST_KEY", "")
	os.Unsetenv("DOCOUTLINE_TEST_KEY")

	LoadDotEnv(path)
	t.Cleanup(func() { os.Unsetenv("DOCOUTLINE_TEST_KEY") })

	assert.Equal(t, "from-file", os.Getenv("DOCOUTLINE_TEST_KEY"))
	assert.Equal(t, "5555", os.Getenv("PORT"))
	assert.Equal(t, "5555", Load().Port)
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NotPanics(t, func() { LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")) })
}
