package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wmclean/internal/config"
	"wmclean/internal/notifications"
)

type processingFlags struct {
	outDir  string
	method  string
	enhance bool
}

func (f *processingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().StringVarP(&f.method, "method", "m", "", "Removal method: remote or local_gpu")
	cmd.Flags().BoolVar(&f.enhance, "enhance", false, "Upscale the cleaned video")
}

// resolve fills unset flags from configuration.
func (f *processingFlags) resolve(cmd *cobra.Command, cfg *config.Config) (outDir, method string, enhance bool) {
	outDir = f.outDir
	if outDir == "" {
		outDir = cfg.Paths.OutputDir
	}
	method = f.method
	if method == "" {
		method = cfg.Processing.Method
	}
	enhance = cfg.Processing.Enhance
	if cmd.Flags().Changed("enhance") {
		enhance = f.enhance
	}
	return outDir, method, enhance
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var flags processingFlags

	cmd := &cobra.Command{
		Use:   "remove <video>",
		Short: "Remove the watermark from a single video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(env *serviceEnv) error {
				cfg, logger, svc := env.cfg, env.logger, env.svc
				outDir, method, enhance := flags.resolve(cmd, cfg)
				if err := env.checkReady(cmd.Context(), method); err != nil {
					return err
				}
				job := svc.NewJob(args[0], outDir, method, enhance)

				display := newProgressDisplay(cmd.ErrOrStderr(), logger)
				result, err := svc.Remove(cmd.Context(), job, display.report())
				display.close()
				notifyCtx := context.WithoutCancel(cmd.Context())
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						env.deliver(func(n notifications.Service) error {
							return n.NotifyVideoFailed(notifyCtx, job.Input, err)
						})
					}
					return err
				}
				if cfg.Notifications.NotifyEachVideo {
					env.deliver(func(n notifications.Service) error {
						return n.NotifyVideoCompleted(notifyCtx, job.Input, result.Output, result.Bytes)
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Cleaned video written to %s (%s)\n", result.Output, humanize.IBytes(uint64(result.Bytes)))
				if result.Enhanced {
					fmt.Fprintln(out, "Enhancement applied")
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}
