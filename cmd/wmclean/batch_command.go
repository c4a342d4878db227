package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wmclean/internal/batch"
	"wmclean/internal/notifications"
	"wmclean/internal/services"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var flags processingFlags
	var skipExisting bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Remove watermarks from every video in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(env *serviceEnv) error {
				cfg, logger, svc := env.cfg, env.logger, env.svc
				outDir, method, enhance := flags.resolve(cmd, cfg)
				if err := env.checkReady(cmd.Context(), method); err != nil {
					return err
				}
				opts := batch.Options{
					Root:         cfg.Paths.AllowedRoot,
					OutDir:       outDir,
					Method:       method,
					Enhance:      enhance,
					Extensions:   cfg.SupportedExtensions(),
					SkipExisting: skipExisting,
				}

				started := time.Now()
				display := newProgressDisplay(cmd.ErrOrStderr(), logger)
				result, err := batch.NewDriver(svc, logger).Run(cmd.Context(), args[0], opts, display.report())
				display.close()
				if err != nil {
					return err
				}
				if asJSON {
					if err := writeJSON(cmd, batchResultJSON(args[0], result)); err != nil {
						return err
					}
				} else {
					printBatchResult(cmd.OutOrStdout(), result)
				}
				if result.Total > 0 {
					env.deliver(func(n notifications.Service) error {
						return n.NotifyBatchCompleted(context.WithoutCancel(cmd.Context()), args[0], result.Success, result.Failed, result.Stopped, time.Since(started))
					})
				}
				if result.Stopped {
					return cmd.Context().Err()
				}
				if result.Failed > 0 {
					return fmt.Errorf("%d of %d videos failed", result.Failed, result.Total)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip videos whose cleaned output already exists")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the batch result as JSON")
	return cmd
}

func printBatchResult(out io.Writer, result batch.Result) {
	if result.Total == 0 {
		if result.Skipped > 0 {
			fmt.Fprintf(out, "Nothing to do (%d already cleaned)\n", result.Skipped)
		} else {
			fmt.Fprintln(out, "No supported videos found")
		}
		return
	}

	tbl := newResultTable(
		leftColumn("Video").cappedAt(40),
		leftColumn("Status"),
		rightColumn("Size"),
		leftColumn("Output / Error").cappedAt(80),
	)
	var written int64
	for _, file := range result.Files {
		if file.Success {
			written += file.Bytes
			tbl.addRow(file.Name, "OK", humanize.IBytes(uint64(file.Bytes)), file.Output)
			continue
		}
		tbl.addRow(file.Name, "FAILED ("+services.Category(file.Err)+")", "-", errorText(file.Err))
	}
	tbl.setFooter(fmt.Sprintf("%d attempted", result.Attempted()), "", humanize.IBytes(uint64(written)), "")
	fmt.Fprintln(out, tbl)

	summary := fmt.Sprintf("%d/%d succeeded, %d failed", result.Success, result.Total, result.Failed)
	if result.Skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", result.Skipped)
	}
	if result.Stopped {
		summary += fmt.Sprintf(" (stopped after %d)", result.Attempted())
	}
	fmt.Fprintln(out, summary)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
