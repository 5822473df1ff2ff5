package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/paperdesk/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "paperdesk",
	Short: "Paper trading desk with simulated bots and a risk calculator",
	Long: `Paperdesk runs a simulated trading desk: virtual accounts open and close
positions against synthetic prices, per-user bots trade on a random
schedule, and operators review top-up payments.

Configuration comes from a TOML file merged over built-in defaults, then
PAPERDESK_* environment variables (a .env file is honoured).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML configuration file (defaults only when empty)")
}

// loadConfig loads and validates the configuration and installs a JSON
// logger at the configured level as the slog default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
