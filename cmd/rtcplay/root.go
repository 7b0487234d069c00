package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pithecene-io/rtcbridge/internal/config"
	"github.com/pithecene-io/rtcbridge/internal/journal"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// flags holds command-line overrides applied on top of the loaded config.
type flags struct {
	fs afero.Fs

	configPath    string
	pacingDelay   time.Duration
	chunkCap      string
	journalPath   string
	journalFormat string
	metricsListen string
	logLevel      string
}

func newRootCmd() *cobra.Command {
	return newRootCmdFs(afero.NewOsFs())
}

// newRootCmdFs builds the command tree reading config and media from fsys.
func newRootCmdFs(fsys afero.Fs) *cobra.Command {
	f := &flags{fs: fsys}
	root := &cobra.Command{
		Use:           "rtcplay",
		Short:         "Play media through the rtcbridge resource loader",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "path to rtcbridge.yaml")
	pf.DurationVar(&f.pacingDelay, "pacing-delay", 0, "delay before each range delivery (overrides loader.pacing_delay)")
	pf.StringVar(&f.chunkCap, "chunk-cap", "", "maximum bytes per range delivery, e.g. 128kB (overrides loader.chunk_cap)")
	pf.StringVar(&f.journalPath, "journal", "", "write the request journal to this path")
	pf.StringVar(&f.journalFormat, "journal-format", "", "journal format: jsonl or parquet")
	pf.StringVar(&f.metricsListen, "metrics-listen", "", "serve /metrics on this address while playing")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (overrides log.level)")

	root.AddCommand(
		newPlayCmd(f),
		newProbeCmd(f),
		newVersionCmd(),
	)
	return root
}

// load resolves the configuration for cmd: file, then environment, then
// flags the user set explicitly.
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.fs, f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("pacing-delay") {
		cfg.Loader.PacingDelay = f.pacingDelay
	}
	if changed("chunk-cap") {
		n, err := units.FromHumanSize(f.chunkCap)
		if err != nil {
			return nil, fmt.Errorf("--chunk-cap: %w", err)
		}
		cfg.Loader.ChunkCap = n
	}
	if changed("journal") {
		cfg.Journal.Path = f.journalPath
	}
	if changed("journal-format") {
		cfg.Journal.Format = journal.Format(f.journalFormat)
	}
	if changed("metrics-listen") {
		cfg.Metrics.Listen = f.metricsListen
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rtcplay %s %s/%s %s\n", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
