package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/paperdesk/internal/app"
	"github.com/alanyoungcy/paperdesk/internal/config"
)

var runMode string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the desk in the configured mode",
	Long: `Run starts the desk. Modes:
  trade    HTTP API, WebSocket hub and bots
  feed     synthetic price feed only
  archive  one archive export, then exit
  full     trade and feed together, plus the archive schedule when enabled`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if runMode != "" {
			cfg.Mode = runMode
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		return runApp(cmd.Context(), cfg, logger)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "override the configured mode (trade, feed, archive, full)")
	rootCmd.AddCommand(runCmd)
}

// runApp runs the application until SIGINT or SIGTERM.
func runApp(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("paperdesk starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
			return nil
		}
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("paperdesk stopped")
	return nil
}
