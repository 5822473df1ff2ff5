package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/paperdesk/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store != "postgres" {
			return errors.New("migrate: store is not postgres")
		}

		pg, err := app.NewPostgres(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.RunMigrations(cmd.Context()); err != nil {
			return err
		}
		logger.Info("migrations applied", slog.String("database", cfg.Postgres.Database))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
