package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"wmclean/internal/batch"
	"wmclean/internal/logging"
	"wmclean/internal/notifications"
	"wmclean/internal/progress"
	"wmclean/internal/remover"
	"wmclean/internal/services"
	"wmclean/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var inbox string
	var flags processingFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process videos dropped into an inbox directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(env *serviceEnv) error {
				cfg, logger, svc := env.cfg, env.logger, env.svc
				if inbox == "" {
					inbox = cfg.Watch.InboxDir
				}
				outDir, method, enhance := flags.resolve(cmd, cfg)
				if sameDir(inbox, outDir) {
					return services.Wrap(services.ErrValidation, "watch", "resolve output",
						"output directory must differ from the inbox "+inbox, nil)
				}
				if err := env.checkReady(cmd.Context(), method); err != nil {
					return err
				}
				driver := batch.NewDriver(svc, logger)
				opts := batch.Options{
					Root:         cfg.Paths.AllowedRoot,
					OutDir:       outDir,
					Method:       method,
					Enhance:      enhance,
					Extensions:   cfg.SupportedExtensions(),
					SkipExisting: true,
					Exclude:      remover.IsOutputName,
				}
				if env.history != nil {
					opts.Done = func(ctx context.Context, input string) bool {
						ok, err := env.history.Succeeded(ctx, input)
						return err == nil && ok
					}
				}
				sampler := logging.NewProgressSampler(25)

				sweep := func(sweepCtx context.Context) error {
					sampler.Reset()
					started := time.Now()
					result, err := driver.Run(sweepCtx, inbox, opts, func(evt progress.Event) {
						if sampler.ShouldLog(evt.Percent, "") {
							logger.Info("sweep progress", logging.String(logging.FieldProgressMessage, evt.Message), logging.Float64(logging.FieldProgressPercent, evt.Percent))
						}
					})
					if err != nil {
						return err
					}
					if result.Total > 0 {
						logger.Info("sweep finished",
							logging.Int("success", result.Success),
							logging.Int("failed", result.Failed),
							logging.Int("skipped", result.Skipped),
						)
						env.deliver(func(n notifications.Service) error {
							return n.NotifyBatchCompleted(context.WithoutCancel(sweepCtx), inbox, result.Success, result.Failed, result.Stopped, time.Since(started))
						})
					}
					return nil
				}

				watcher, err := watch.New(watch.Options{
					Inbox:      inbox,
					Schedule:   cfg.Watch.Schedule,
					Debounce:   time.Duration(cfg.Watch.DebounceSeconds) * time.Second,
					Extensions: cfg.SupportedExtensions(),
					Ignore:     remover.IsOutputName,
				}, sweep, logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (schedule %q); press Ctrl+C to stop\n", inbox, cfg.Watch.Schedule)
				return watcher.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&inbox, "inbox", "", "Inbox directory (defaults to watch.inbox_dir)")
	flags.register(cmd)
	return cmd
}

// sameDir compares two directories after resolving them to absolute paths and,
// where they exist, following symlinks.
func sameDir(a, b string) bool {
	resolve := func(p string) string {
		abs, err := filepath.Abs(p)
		if err != nil {
			return filepath.Clean(p)
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			return real
		}
		return abs
	}
	return resolve(a) == resolve(b)
}
