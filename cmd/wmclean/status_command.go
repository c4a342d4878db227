package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wmclean/internal/config"
	"wmclean/internal/preflight"
	"wmclean/internal/runlock"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dependency, directory, and token health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report := newStatusReport(out)
			report.dependencies(preflight.CheckSystemDeps(cmd.Context(), cfg))

			method := cfg.Processing.Method
			results := preflight.RunAll(cmd.Context(), cfg, method)
			if !offline && method == config.MethodRemote {
				// Replace the offline token check with the live one.
				for i, r := range results {
					if r.Name == "Replicate token" {
						results[i] = preflight.CheckToken(cmd.Context(), cfg)
					}
				}
			}
			report.checks(results, method)

			report.section("Runtime")
			report.line("Method", statusInfo, method)
			report.line("History", statusInfo, yesNo(cfg.History.Enabled))
			if pid := runlock.HolderPID(cfg.LockPath()); pid > 0 && lockHeld(cfg) {
				report.line("Processing", statusWarn, fmt.Sprintf("running (pid %d)", pid))
			} else {
				report.line("Processing", statusInfo, "idle")
			}

			fmt.Fprintln(out, report)
			if !report.healthy {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the live token check")
	return cmd
}

// lockHeld reports whether another process currently holds the run lock.
func lockHeld(cfg *config.Config) bool {
	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return true
	}
	_ = lock.Release()
	return false
}
