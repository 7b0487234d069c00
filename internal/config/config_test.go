package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/rtcbridge/bridge"
	"github.com/pithecene-io/rtcbridge/internal/journal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	assert.Equal(t, int64(128_000), cfg.Loader.ChunkCap)
	assert.Equal(t, 200*time.Millisecond, cfg.Loader.PacingDelay)
	assert.Equal(t, int64(0), cfg.Loader.Bandwidth)
	assert.Equal(t, "video/mp4", cfg.Loader.ContentType)
	assert.Equal(t, int64(2), cfg.Loader.PrimingLength)
	assert.Equal(t, bridge.DefaultScheme, cfg.Scheme)
	assert.Equal(t, SourceFile, cfg.Source.Kind)
	assert.Equal(t, journal.FormatJSONL, cfg.Journal.Format)
	assert.Equal(t, 4, cfg.Host.ReadAhead)
	assert.Equal(t, int64(500_000), cfg.Host.ReadSize)
	assert.Equal(t, 2, cfg.Host.MaxRetries)

	assert.Equal(t, cfg, Default())
}

func TestLoad_File(t *testing.T) {
	fsys := afero.NewMemMapFs()
	yaml := `
loader:
  chunk_cap: 64kB
  pacing_delay: 10ms
  bandwidth: 1MB
  strict: true
scheme:
  custom: vault
source:
  kind: s3
s3:
  bucket: media
  prefix: clips
journal:
  path: /tmp/journal.parquet
  format: parquet
host:
  read_ahead: 2
`
	require.NoError(t, afero.WriteFile(fsys, "/etc/rtcbridge.yaml", []byte(yaml), 0o644))

	cfg, err := Load(fsys, "/etc/rtcbridge.yaml")
	require.NoError(t, err)

	assert.Equal(t, int64(64_000), cfg.Loader.ChunkCap)
	assert.Equal(t, 10*time.Millisecond, cfg.Loader.PacingDelay)
	assert.Equal(t, int64(1_000_000), cfg.Loader.Bandwidth)
	assert.True(t, cfg.Loader.Strict)
	assert.Equal(t, bridge.Scheme{Custom: "vault", Native: "file"}, cfg.Scheme)
	assert.Equal(t, SourceS3, cfg.Source.Kind)
	assert.Equal(t, "media", cfg.S3Source().Bucket)
	assert.Equal(t, "clips", cfg.S3Source().Prefix)
	assert.Equal(t, "us-east-1", cfg.S3Client().Region)
	assert.Equal(t, journal.FormatParquet, cfg.Journal.Format)
	assert.Equal(t, 2, cfg.Host.ReadAhead)

	assert.Len(t, cfg.LoaderOptions(), 6)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/rtcbridge.yaml", []byte("loader:\n  pacing_delay: 10ms\n"), 0o644))
	t.Setenv("RTCBRIDGE_LOADER_PACING_DELAY", "75ms")
	t.Setenv("RTCBRIDGE_LOADER_CHUNK_CAP", "32kB")

	cfg, err := Load(fsys, "/rtcbridge.yaml")
	require.NoError(t, err)
	assert.Equal(t, 75*time.Millisecond, cfg.Loader.PacingDelay)
	assert.Equal(t, int64(32_000), cfg.Loader.ChunkCap)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nope.yaml")
	require.Error(t, err)
}

func TestLoad_BadSize(t *testing.T) {
	t.Setenv("RTCBRIDGE_LOADER_CHUNK_CAP", "lots")
	_, err := Load(afero.NewMemMapFs(), "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk cap", func(c *Config) { c.Loader.ChunkCap = 0 }},
		{"negative pacing", func(c *Config) { c.Loader.PacingDelay = -time.Second }},
		{"negative bandwidth", func(c *Config) { c.Loader.Bandwidth = -1 }},
		{"empty content type", func(c *Config) { c.Loader.ContentType = "" }},
		{"negative priming", func(c *Config) { c.Loader.PrimingLength = -1 }},
		{"same schemes", func(c *Config) { c.Scheme.Custom = c.Scheme.Native }},
		{"unknown source", func(c *Config) { c.Source.Kind = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Source.Kind = SourceS3 }},
		{"unknown journal format", func(c *Config) { c.Journal.Format = "csv" }},
		{"no read ahead", func(c *Config) { c.Host.ReadAhead = 0 }},
		{"zero read size", func(c *Config) { c.Host.ReadSize = 0 }},
		{"negative retries", func(c *Config) { c.Host.MaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoaderOptions_BuildLoader(t *testing.T) {
	cfg := Default()
	cfg.Loader.Strict = true

	loader, err := bridge.NewResourceLoader(bridge.NewMemorySource(), cfg.LoaderOptions()...)
	require.NoError(t, err)
	require.NoError(t, loader.Close())
}
