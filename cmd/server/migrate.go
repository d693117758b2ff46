package main

import (
	"errors"

	"github.com/spf13/cobra"

	"taxlens/internal/platform/logger"
	"taxlens/internal/platform/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("migrate needs DATABASE_URL or database.url")
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)
			if err := postgres.Migrate(cmd.Context(), cfg.Database.URL); err != nil {
				return err
			}
			log.Info("schema applied")
			return nil
		},
	}
}
