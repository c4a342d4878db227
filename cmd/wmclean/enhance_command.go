package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wmclean/internal/enhance"
	"wmclean/internal/guard"
)

func newEnhanceCommand(ctx *commandContext) *cobra.Command {
	var outDir string
	var scale int

	cmd := &cobra.Command{
		Use:   "enhance <video>",
		Short: "Upscale a video without removing watermarks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.loggerFor(cmd)
			if err != nil {
				return err
			}
			if scale > 0 {
				cfg.Enhance.Scale = scale
			}

			input, err := guard.ValidateFile(cfg.Paths.AllowedRoot, args[0], cfg.SupportedExtensions())
			if err != nil {
				return err
			}
			if _, err := guard.VerifyVideo(input, cfg.SupportedExtensions()); err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Paths.OutputDir
			}
			dir, err := guard.ValidateDir(cfg.Paths.AllowedRoot, outDir, false, true)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			output := enhancedPath(input, dir)

			return withRunLock(cfg, func() error {
				pipeline := enhance.NewPipelineFromConfig(cfg, logger)
				display := newProgressDisplay(cmd.ErrOrStderr(), logger)
				err := pipeline.Enhance(cmd.Context(), input, output, display.report())
				display.close()
				if err != nil {
					return err
				}
				info, err := os.Stat(output)
				if err != nil {
					return fmt.Errorf("stat output: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enhanced video written to %s (%s)\n", output, humanize.IBytes(uint64(info.Size())))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().IntVar(&scale, "scale", 0, "Upscale factor (defaults to enhance.scale)")
	return cmd
}

func enhancedPath(input, dir string) string {
	stem := guard.FileStem(input)
	if stem == "" {
		stem = "video"
	}
	return filepath.Join(dir, stem+"_enhanced.mp4")
}

