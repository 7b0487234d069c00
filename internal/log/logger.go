// Package log configures the process-wide zerolog logger.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldResource  = "resource"
	FieldKind      = "kind"
	FieldState     = "state"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every entry
	Console bool      // human-readable console output instead of JSON
}

var (
	mu   sync.Mutex
	base = zerolog.Nop()
	set  bool
)

// Configure builds the global logger. Later calls replace earlier ones.
func Configure(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	lvl := cfg.Level
	if lvl == "" {
		lvl = os.Getenv("LOG_LEVEL")
	}
	if lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if cfg.Console {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
	}

	service := cfg.Service
	if service == "" {
		service = "rtcbridge"
	}

	l := zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()

	mu.Lock()
	base = l
	set = true
	mu.Unlock()
	return l
}

// Base returns the configured logger, or a no-op logger before Configure.
func Base() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base
}

// Configured reports whether Configure has been called.
func Configured() bool {
	mu.Lock()
	defer mu.Unlock()
	return set
}

// WithComponent returns a child logger annotated with the component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}
