package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Shivamkadam692/WorkConnect/internal/config"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

var errNoDatabaseURL = errors.New("DATABASE_URL is not set; the SQLite store creates its schema on open")

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.UsePostgres() {
				return errNoDatabaseURL
			}
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			logger := newLogger()
			logger.Info().Msg("migrations completed")
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the state of each migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.UsePostgres() {
				return errNoDatabaseURL
			}
			return store.MigrationStatus(cfg.DatabaseURL)
		},
	})
	return cmd
}
