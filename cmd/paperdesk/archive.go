package main

import (
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Export settled positions and audit entries past retention to S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Mode = "archive"
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runApp(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}
