package main

import (
	"FormCoach/internal/config"
	applog "FormCoach/pkg/logger"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "formcoach",
	Short:         "Workout video posture analysis backend",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		bootstrap, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("can't initialize zap logger: %w", err)
		}

		path := configPath
		// A missing default config file means defaults plus environment.
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) && !cmd.Flags().Changed("config") {
			path = ""
		}
		cfg, err = config.NewConfigLoader(bootstrap).Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err = applog.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, workerCmd, annotateCmd, extractCmd)
}
