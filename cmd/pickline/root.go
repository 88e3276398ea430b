package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var flags globalFlags

	ctx := newCommandContext(&flags)

	rootCmd := &cobra.Command{
		Use:           "pickline",
		Short:         "Pickline picking session CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", "", "picklined base URL (defaults to device.server_url)")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", "", "API bearer token (defaults to device.api_token)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flags.json, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newSessionCommand(ctx))
	rootCmd.AddCommand(newAdminCommand(ctx))
	rootCmd.AddCommand(newDeviceCommand(ctx))
	rootCmd.AddCommand(newCodeCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
