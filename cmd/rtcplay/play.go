package main

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/rtcbridge/bridge"
	"github.com/pithecene-io/rtcbridge/internal/host"
)

func newPlayCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "play FILE...",
		Short: "Play files through the loader and print a summary per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, f.fs)
			if err != nil {
				return err
			}
			assets, err := a.assets(args)
			if err != nil {
				a.close()
				return err
			}

			var ln net.Listener
			if cfg.Metrics.Listen != "" {
				ln, err = net.Listen("tcp", cfg.Metrics.Listen)
				if err != nil {
					a.close()
					return fmt.Errorf("metrics listen: %w", err)
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			playDone := make(chan struct{})
			if ln != nil {
				g.Go(func() error {
					serveCtx, cancel := contextUntil(gctx, playDone)
					defer cancel()
					return serveMetrics(serveCtx, ln, a.registry, a.log)
				})
			}
			g.Go(func() error {
				defer close(playDone)
				start := time.Now()
				results, err := a.player.PlayAll(gctx, bridge.Playlist(assets))
				printResults(cmd.OutOrStdout(), results, time.Since(start))
				return err
			})

			err = g.Wait()
			if ferr := a.finish(); err == nil {
				err = ferr
			}
			return err
		},
	}
}

func printResults(w io.Writer, results []*host.Result, elapsed time.Duration) {
	var total int64
	for _, r := range results {
		total += int64(len(r.Data))
		fmt.Fprintf(w, "%s\t%s\t%s\trequests=%d retries=%d\n",
			r.Asset,
			units.HumanSize(float64(r.Info.Length)),
			r.Info.ContentType,
			r.Requests,
			r.Retries,
		)
	}
	fmt.Fprintf(w, "played %d asset(s), %s in %s\n", len(results), units.HumanSize(float64(total)), elapsed.Round(time.Millisecond))
}
