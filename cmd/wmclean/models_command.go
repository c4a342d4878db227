package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"wmclean/internal/enhance"
	"wmclean/internal/fetch"
	"wmclean/internal/local"
)

var modelNames = []string{"detector", "upscaler"}

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Model weight utilities",
	}

	var force bool
	fetchCmd := &cobra.Command{
		Use:       "fetch [detector|upscaler]...",
		Short:     "Download the watermark detector and Real-ESRGAN weights",
		ValidArgs: modelNames,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.loggerFor(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = modelNames
			}
			out := cmd.OutOrStdout()
			for _, name := range modelNames {
				if !slices.Contains(args, name) {
					continue
				}
				asset := local.ModelAsset(cfg)
				if name == "upscaler" {
					asset = enhance.ModelAsset(cfg)
				}
				display := newProgressDisplay(cmd.ErrOrStderr(), logger)
				downloaded, err := fetch.Ensure(cmd.Context(), asset, force, logger, display.report())
				display.close()
				if err != nil {
					return err
				}
				label := strings.ToUpper(asset.Name[:1]) + asset.Name[1:]
				if downloaded {
					fmt.Fprintf(out, "Downloaded %s to %s\n", asset.Name, asset.Dest)
				} else {
					fmt.Fprintf(out, "%s already present at %s (use --force to replace)\n", label, asset.Dest)
				}
			}
			return nil
		},
	}
	fetchCmd.Flags().BoolVar(&force, "force", false, "Download even when the weights exist")
	modelsCmd.AddCommand(fetchCmd)
	return modelsCmd
}
