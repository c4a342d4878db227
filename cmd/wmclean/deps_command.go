package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wmclean/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	depsCmd := &cobra.Command{
		Use:   "deps",
		Short: "External dependency utilities",
	}

	var url string
	fetchCmd := &cobra.Command{
		Use:   "fetch-ffmpeg",
		Short: "Download an ffmpeg build into ffmpeg.bundle_dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.loggerFor(cmd)
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.FFmpeg.BundleURL
			}
			display := newProgressDisplay(cmd.ErrOrStderr(), logger)
			installed, err := deps.InstallFFmpegBundle(cmd.Context(), logger, url, cfg.FFmpeg.BundleDir, display.report())
			display.close()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range installed {
				fmt.Fprintf(out, "Installed %s\n", path)
			}
			return nil
		},
	}
	fetchCmd.Flags().StringVar(&url, "url", "", "Archive URL (defaults to ffmpeg.bundle_url)")
	depsCmd.AddCommand(fetchCmd)
	return depsCmd
}
