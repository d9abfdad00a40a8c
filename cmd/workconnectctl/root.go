package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Shivamkadam692/WorkConnect/internal/config"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "workconnectctl",
		Short:        "WorkConnect operational tools",
		SilenceUsage: true,
	}
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newNotificationsCmd())
	cmd.AddCommand(newWorkersCmd())
	return cmd
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}

// openStore opens the store the server would use for the same environment.
func openStore(ctx context.Context) (store.DataStore, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.UsePostgres() {
		db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return db, cfg, nil
	}
	db, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
	}
	return db, cfg, nil
}
