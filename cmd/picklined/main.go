package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pickline/internal/config"
	"pickline/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "picklined: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		pickers    []string
		barcodes   []string
	)
	cmd := &cobra.Command{
		Use:           "picklined",
		Short:         "Serve picking sessions to handhelds and operators",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseSeeds(pickers, barcodes)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), configPath, seed)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringArrayVar(&pickers, "picker", nil, "Register a picker as id=Name (repeatable)")
	cmd.Flags().StringArrayVar(&barcodes, "barcode", nil, "Register a barcode alias as code=SKU (repeatable)")
	return cmd
}

func runDaemon(parent context.Context, configPath string, seed seedList) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	d, err := buildDaemon(ctx, cfg, seed, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return err
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("daemon start: %w", err)
	}

	<-ctx.Done()
	logger.Info("picklined shutting down")
	return nil
}
