package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wmclean/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the current daily log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := logs.Latest(cfg.Paths.LogDir)
			if err != nil {
				return err
			}
			match := logs.JobMatcher(jobID)
			recent, offset, err := logs.Last(path, lines, match)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, match, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines for this job ID (prefix match)")
	return cmd
}
