package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Worker profile administration",
	}

	var (
		workerID string
		name     string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an available worker profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			wid, err := uuid.Parse(workerID)
			if err != nil {
				return fmt.Errorf("invalid --worker: %w", err)
			}
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("--name must not be blank")
			}

			db, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			profile, err := db.CreateWorkerProfile(cmd.Context(), wid, name)
			if err != nil {
				return err
			}
			return writeJSON(profile)
		},
	}
	create.Flags().StringVar(&workerID, "worker", "", "Worker user UUID (required)")
	create.Flags().StringVar(&name, "name", "", "Display name (required)")
	_ = create.MarkFlagRequired("worker")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	return cmd
}
