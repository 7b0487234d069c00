// Package config loads rtcbridge settings with precedence ENV > file > defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/pithecene-io/rtcbridge/bridge"
	"github.com/pithecene-io/rtcbridge/bridge/s3"
	"github.com/pithecene-io/rtcbridge/internal/journal"
)

// EnvPrefix is prepended to every environment override, e.g.
// RTCBRIDGE_LOADER_PACING_DELAY=50ms.
const EnvPrefix = "RTCBRIDGE"

// Source kinds.
const (
	SourceFile = "file"
	SourceS3   = "s3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// envKeyReplacer maps "loader.chunk_cap" to "LOADER_CHUNK_CAP".
var envKeyReplacer = strings.NewReplacer(".", "_")

// defaults are registered on every viper instance so AutomaticEnv can see
// each key even when no file sets it.
var defaults = map[string]any{
	"loader.chunk_cap":      "128kB",
	"loader.pacing_delay":   bridge.DefaultPacingDelay,
	"loader.bandwidth":      "0",
	"loader.content_type":   bridge.DefaultContentType,
	"loader.priming_length": bridge.DefaultPrimingLength,
	"loader.strict":         false,
	"scheme.custom":         bridge.DefaultScheme.Custom,
	"scheme.native":         bridge.DefaultScheme.Native,
	"source.kind":           SourceFile,
	"source.root":           "",
	"source.zstd":           false,
	"s3.bucket":             "",
	"s3.prefix":             "",
	"s3.region":             "us-east-1",
	"s3.endpoint":           "",
	"s3.path_style":         false,
	"log.level":             "info",
	"log.console":           false,
	"metrics.listen":        "",
	"journal.path":          "",
	"journal.format":        string(journal.FormatJSONL),
	"host.read_ahead":       4,
	"host.read_size":        "500kB",
	"host.max_retries":      2,
}

// Config is the resolved application configuration.
type Config struct {
	Loader  Loader
	Scheme  bridge.Scheme
	Source  Source
	S3      S3
	Log     Log
	Metrics Metrics
	Journal Journal
	Host    Host
}

// Loader holds resource loader settings.
type Loader struct {
	ChunkCap      int64
	PacingDelay   time.Duration
	Bandwidth     int64
	ContentType   string
	PrimingLength int64
	Strict        bool
}

// Source selects the data backend.
type Source struct {
	Kind string
	Root string // file kind only; paths are resolved inside Root
	Zstd bool   // resources are zstd frames
}

// S3 holds object store settings, used when Source.Kind is "s3".
type S3 struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Log holds logger settings.
type Log struct {
	Level   string
	Console bool
}

// Metrics holds the metrics endpoint address. Empty disables it.
type Metrics struct {
	Listen string
}

// Journal holds request journal export settings. Empty Path disables it.
type Journal struct {
	Path   string
	Format journal.Format
}

// Host holds simulated playback host settings.
type Host struct {
	ReadAhead  int
	ReadSize   int64
	MaxRetries int
}

// Load reads configuration from path on fsys (if path is non-empty),
// applies RTCBRIDGE_* environment overrides and validates the result.
func Load(fsys afero.Fs, path string) (*Config, error) {
	v := viper.New()
	if fsys != nil {
		v.SetFs(fsys)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	chunkCap, err := parseSize(v, "loader.chunk_cap")
	if err != nil {
		return nil, err
	}
	bandwidth, err := parseSize(v, "loader.bandwidth")
	if err != nil {
		return nil, err
	}
	readSize, err := parseSize(v, "host.read_size")
	if err != nil {
		return nil, err
	}

	return &Config{
		Loader: Loader{
			ChunkCap:      chunkCap,
			PacingDelay:   v.GetDuration("loader.pacing_delay"),
			Bandwidth:     bandwidth,
			ContentType:   v.GetString("loader.content_type"),
			PrimingLength: v.GetInt64("loader.priming_length"),
			Strict:        v.GetBool("loader.strict"),
		},
		Scheme: bridge.Scheme{
			Custom: v.GetString("scheme.custom"),
			Native: v.GetString("scheme.native"),
		},
		Source: Source{
			Kind: strings.ToLower(v.GetString("source.kind")),
			Root: v.GetString("source.root"),
			Zstd: v.GetBool("source.zstd"),
		},
		S3: S3{
			Bucket:    v.GetString("s3.bucket"),
			Prefix:    v.GetString("s3.prefix"),
			Region:    v.GetString("s3.region"),
			Endpoint:  v.GetString("s3.endpoint"),
			PathStyle: v.GetBool("s3.path_style"),
		},
		Log: Log{
			Level:   v.GetString("log.level"),
			Console: v.GetBool("log.console"),
		},
		Metrics: Metrics{Listen: v.GetString("metrics.listen")},
		Journal: Journal{
			Path:   v.GetString("journal.path"),
			Format: journal.Format(strings.ToLower(v.GetString("journal.format"))),
		},
		Host: Host{
			ReadAhead:  v.GetInt("host.read_ahead"),
			ReadSize:   readSize,
			MaxRetries: v.GetInt("host.max_retries"),
		},
	}, nil
}

// parseSize accepts decimal human sizes ("128kB", "1MB") or plain byte counts.
func parseSize(v *viper.Viper, key string) (int64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	n, err := units.FromHumanSize(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", key, ErrInvalidConfig, err)
	}
	return n, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.Loader.ChunkCap <= 0 {
		errs = append(errs, fmt.Errorf("loader.chunk_cap must be positive, got %d", c.Loader.ChunkCap))
	}
	if c.Loader.PacingDelay < 0 {
		errs = append(errs, fmt.Errorf("loader.pacing_delay must not be negative, got %s", c.Loader.PacingDelay))
	}
	if c.Loader.Bandwidth < 0 {
		errs = append(errs, fmt.Errorf("loader.bandwidth must not be negative, got %d", c.Loader.Bandwidth))
	}
	if c.Loader.ContentType == "" {
		errs = append(errs, errors.New("loader.content_type is required"))
	}
	if c.Loader.PrimingLength < 0 {
		errs = append(errs, fmt.Errorf("loader.priming_length must not be negative, got %d", c.Loader.PrimingLength))
	}
	if err := c.Scheme.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scheme: %w", err))
	}
	switch c.Source.Kind {
	case SourceFile:
	case SourceS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.bucket is required when source.kind is s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind must be %q or %q, got %q", SourceFile, SourceS3, c.Source.Kind))
	}
	if _, err := journal.ParseFormat(string(c.Journal.Format)); err != nil {
		errs = append(errs, fmt.Errorf("journal.format: %w", err))
	}
	if c.Host.ReadAhead < 1 {
		errs = append(errs, fmt.Errorf("host.read_ahead must be at least 1, got %d", c.Host.ReadAhead))
	}
	if c.Host.ReadSize <= 0 {
		errs = append(errs, fmt.Errorf("host.read_size must be positive, got %d", c.Host.ReadSize))
	}
	if c.Host.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("host.max_retries must not be negative, got %d", c.Host.MaxRetries))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoaderOptions converts the loader section into bridge options.
// Logger, scheduler and observers are wired by the caller.
func (c *Config) LoaderOptions() []bridge.Option {
	opts := []bridge.Option{
		bridge.WithChunkCap(c.Loader.ChunkCap),
		bridge.WithPacingDelay(c.Loader.PacingDelay),
		bridge.WithBandwidth(c.Loader.Bandwidth),
		bridge.WithContentType(c.Loader.ContentType),
		bridge.WithPrimingLength(c.Loader.PrimingLength),
	}
	if c.Loader.Strict {
		opts = append(opts, bridge.WithStrictResolution())
	}
	return opts
}

// S3Client returns the client settings for the s3 section.
func (c *Config) S3Client() s3.ClientConfig {
	return s3.ClientConfig{
		Region:       c.S3.Region,
		Endpoint:     c.S3.Endpoint,
		UsePathStyle: c.S3.PathStyle,
	}
}

// S3Source returns the source settings for the s3 section.
func (c *Config) S3Source() s3.Config {
	return s3.Config{Bucket: c.S3.Bucket, Prefix: c.S3.Prefix}
}
