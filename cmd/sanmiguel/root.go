package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var assetRootFlag string
	var convertFlag bool

	ctx := newCommandContext(&configFlag, &assetRootFlag)

	rootCmd := &cobra.Command{
		Use:           "sanmiguel",
		Short:         "San Miguel scene texture tooling",
		Long:          "Inspect the San Miguel asset tree, or convert its textures to BC7 KTX2 with --convert.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if convertFlag {
				return runConvert(cmd, ctx, convertOptions{})
			}
			return runInspect(cmd, ctx, false)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&assetRootFlag, "asset-root", "", "Asset root directory (overrides configuration)")
	rootCmd.Flags().BoolVar(&convertFlag, "convert", false, "Convert textures to KTX2 and rewrite manifests")

	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
