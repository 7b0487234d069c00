package main

import (
	"encoding/hex"
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

func newProbeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE...",
		Short: "Issue a content-info probe for each file and print the result",
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

			out := cmd.OutOrStdout()
			for _, asset := range assets {
				info, priming, err := a.player.Probe(ctx, asset)
				if err != nil {
					a.close()
					return fmt.Errorf("%s: %w", asset.ID(), err)
				}
				fmt.Fprintf(out, "%s\tlength=%d (%s)\ttype=%s\tranges=%t\tpriming=%s\n",
					asset.ID(),
					info.Length,
					units.HumanSize(float64(info.Length)),
					info.ContentType,
					info.ByteRangeAccessSupported,
					hex.EncodeToString(priming),
				)
			}
			return a.finish()
		},
	}
}
