package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// -----------------------------------------------------------------------------
// Loader Configuration
// -----------------------------------------------------------------------------

// loaderConfig holds the resolved configuration for a loader.
type loaderConfig struct {
	chunkCap         int64
	pacingDelay      time.Duration
	bandwidth        int64
	contentType      string
	primingLength    int64
	strictResolution bool
	scheduler        Scheduler
	logger           zerolog.Logger
	observer         Observer
}

func defaultLoaderConfig() *loaderConfig {
	return &loaderConfig{
		chunkCap:      TransportChunkCap,
		pacingDelay:   DefaultPacingDelay,
		contentType:   DefaultContentType,
		primingLength: DefaultPrimingLength,
		scheduler:     RealScheduler(),
		logger:        zerolog.Nop(),
		observer:      nopObserver{},
	}
}

// Option configures ResourceLoader construction.
type Option interface {
	applyLoader(*loaderConfig) error
}

// ErrInvalidOption indicates an option value that cannot be applied.
var ErrInvalidOption = errors.New("invalid option")

type optionFunc func(*loaderConfig) error

func (f optionFunc) applyLoader(cfg *loaderConfig) error { return f(cfg) }

// WithChunkCap sets the maximum bytes delivered per range read.
// Default: TransportChunkCap.
func WithChunkCap(n int64) Option {
	return optionFunc(func(cfg *loaderConfig) error {
		if n <= 0 {
			return fmt.Errorf("WithChunkCap(%d): %w", n, ErrInvalidOption)
		}
		cfg.chunkCap = n
		return nil
	})
}

// WithPacingDelay sets the artificial latency before each range delivery.
// Zero delivers as soon as the worker is free. Default: DefaultPacingDelay.
func WithPacingDelay(d time.Duration) Option {
	return optionFunc(func(cfg *loaderConfig) error {
		if d < 0 {
			return fmt.Errorf("WithPacingDelay(%s): %w", d, ErrInvalidOption)
		}
		cfg.pacingDelay = d
		return nil
	})
}

// WithBandwidth emulates a transport limited to bytesPerSecond. The delay a
// chunk would take on such a link is added to the pacing delay. Zero
// disables the limit. Default: 0.
func WithBandwidth(bytesPerSecond int64) Option {
	return optionFunc(func(cfg *loaderConfig) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("WithBandwidth(%d): %w", bytesPerSecond, ErrInvalidOption)
		}
		cfg.bandwidth = bytesPerSecond
		return nil
	})
}

// WithContentType sets the label reported by info probes.
// Default: DefaultContentType.
func WithContentType(contentType string) Option {
	return optionFunc(func(cfg *loaderConfig) error {
		if contentType == "" {
			return fmt.Errorf("WithContentType: empty content type: %w", ErrInvalidOption)
		}
		cfg.contentType = contentType
		return nil
	})
}

// WithPrimingLength sets the size of the priming read attached to info
// probes. Zero disables priming. Default: DefaultPrimingLength.
func WithPrimingLength(n int64) Option {
	return optionFunc(func(cfg *loaderConfig) error {
		if n < 0 {
			return fmt.Errorf("WithPrimingLength(%d): %w", n, ErrInvalidOption)
		}
		cfg.primingLength = n
		return nil
	})
}

// WithStrictResolution makes info probes for unresolvable resources fail
// instead of reporting a zero length.
func WithStrictResolution() Option {
	return optionFunc(func(cfg *loaderConfig) error {
		cfg.strictResolution = true
		return nil
	})
}

// WithScheduler sets the scheduler used for paced deliveries.
// Default: RealScheduler().
func WithScheduler(s Scheduler) Option {
	return optionFunc(func(cfg *loaderConfig) error {
		if s == nil {
			return fmt.Errorf("WithScheduler: nil scheduler: %w", ErrInvalidOption)
		}
		cfg.scheduler = s
		return nil
	})
}

// WithLogger sets the loader's logger. Default: zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return optionFunc(func(cfg *loaderConfig) error {
		cfg.logger = l
		return nil
	})
}

// WithObserver registers lifecycle observers. Multiple calls accumulate.
func WithObserver(obs ...Observer) Option {
	return optionFunc(func(cfg *loaderConfig) error {
		all := make([]Observer, 0, len(obs)+1)
		if _, ok := cfg.observer.(nopObserver); !ok {
			all = append(all, cfg.observer)
		}
		for _, o := range obs {
			if o != nil {
				all = append(all, o)
			}
		}
		cfg.observer = Observers(all...)
		return nil
	})
}
