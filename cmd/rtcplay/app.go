package main

import (
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/pithecene-io/rtcbridge/bridge"
	"github.com/pithecene-io/rtcbridge/bridge/s3"
	"github.com/pithecene-io/rtcbridge/internal/config"
	"github.com/pithecene-io/rtcbridge/internal/host"
	"github.com/pithecene-io/rtcbridge/internal/journal"
	xlog "github.com/pithecene-io/rtcbridge/internal/log"
	"github.com/pithecene-io/rtcbridge/internal/metrics"
)

// app wires one loader, its data source and observers from a config.
type app struct {
	cfg      *config.Config
	fs       afero.Fs
	log      zerolog.Logger
	registry *prometheus.Registry
	journal  *journal.Journal
	loader   *bridge.ResourceLoader
	player   *host.Player

	// resolve maps a command-line argument to an intercepted asset.
	resolve func(arg string) (bridge.Asset, error)

	cleanup []func()
}

// s3ClientFactory builds the object store client. Tests replace it.
var s3ClientFactory = func(ctx context.Context, cfg s3.ClientConfig) (s3.API, error) {
	return s3.NewClient(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config, fsys afero.Fs) (*app, error) {
	xlog.Configure(xlog.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

	a := &app{
		cfg:      cfg,
		fs:       fsys,
		log:      xlog.WithComponent("rtcplay"),
		registry: prometheus.NewRegistry(),
		journal:  journal.New(),
	}

	src, scheme, err := a.buildSource(ctx, fsys)
	if err != nil {
		a.close()
		return nil, err
	}

	mux := bridge.NewMux()
	if err := mux.Register(scheme.Custom, src); err != nil {
		a.close()
		return nil, err
	}

	opts := append(cfg.LoaderOptions(),
		bridge.WithLogger(xlog.WithComponent("loader")),
		bridge.WithObserver(metrics.New(a.registry), a.journal),
	)
	loader, err := bridge.NewResourceLoader(mux, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.loader = loader
	a.cleanup = append(a.cleanup, func() { _ = loader.Close() })

	hostLog := xlog.WithComponent("host")
	a.player = host.New(host.Config{
		ReadSize:   cfg.Host.ReadSize,
		ReadAhead:  cfg.Host.ReadAhead,
		MaxRetries: cfg.Host.MaxRetries,
		Logger:     &hostLog,
	})
	return a, nil
}

// buildSource creates the configured data source and the scheme its assets
// are registered under.
func (a *app) buildSource(ctx context.Context, fsys afero.Fs) (bridge.DataSource, bridge.Scheme, error) {
	var (
		src    bridge.DataSource
		scheme bridge.Scheme
	)

	switch a.cfg.Source.Kind {
	case config.SourceS3:
		client, err := s3ClientFactory(ctx, a.cfg.S3Client())
		if err != nil {
			return nil, scheme, fmt.Errorf("s3 client: %w", err)
		}
		s3src, err := s3.New(client, a.cfg.S3Source())
		if err != nil {
			return nil, scheme, err
		}
		src, scheme = s3src, s3.DefaultScheme
		a.resolve = func(key string) (bridge.Asset, error) {
			id, err := s3src.ResourceID(key)
			if err != nil {
				return bridge.Asset{}, err
			}
			return bridge.NewAsset(id, scheme, a.loader), nil
		}

	default:
		scheme = a.cfg.Scheme
		root := a.cfg.Source.Root
		if root != "" {
			fsys = afero.NewBasePathFs(fsys, root)
		}
		fileSrc, err := bridge.NewFileSource(fsys, scheme)
		if err != nil {
			return nil, scheme, err
		}
		src = fileSrc
		a.resolve = func(arg string) (bridge.Asset, error) {
			raw, err := fileURL(arg, root != "")
			if err != nil {
				return bridge.Asset{}, err
			}
			return bridge.RegisterFile(raw, scheme, a.loader)
		}
	}

	if a.cfg.Source.Zstd {
		zsrc, err := bridge.NewZstdSource(src)
		if err != nil {
			return nil, scheme, err
		}
		a.cleanup = append(a.cleanup, zsrc.Close)
		src = zsrc
	}
	return src, scheme, nil
}

// fileURL builds the native URL for a path argument. Under a source root the
// argument is taken relative to the root.
func fileURL(arg string, rooted bool) (string, error) {
	if !rooted {
		return bridge.FileURL(arg)
	}
	u := url.URL{Scheme: "file", Path: path.Join("/", arg)}
	return u.String(), nil
}

// assets resolves every argument, failing on the first bad one.
func (a *app) assets(args []string) ([]bridge.Asset, error) {
	out := make([]bridge.Asset, 0, len(args))
	for _, arg := range args {
		asset, err := a.resolve(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, nil
}

// finish writes the journal if configured and releases resources.
func (a *app) finish() error {
	a.close()
	if a.cfg.Journal.Path == "" {
		return nil
	}
	if err := a.journal.WriteFile(a.fs, a.cfg.Journal.Path, a.cfg.Journal.Format); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	a.log.Info().
		Str("path", a.cfg.Journal.Path).
		Int("entries", a.journal.Len()).
		Msg("journal written")
	return nil
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
