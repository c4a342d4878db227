package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wmclean/internal/preflight"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Prediction API token utilities",
	}
	tokenCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the configured token against the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result := preflight.CheckToken(cmd.Context(), cfg)
			if !result.Passed {
				return fmt.Errorf("token check failed: %s", result.Detail)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token OK: %s\n", result.Detail)
			return nil
		},
	})
	return tokenCmd
}
