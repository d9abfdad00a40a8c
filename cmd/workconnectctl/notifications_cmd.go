package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivamkadam692/WorkConnect/internal/notify"
)

type sweepOutput struct {
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
	Expired    int64  `json:"expired"`
	Read       int64  `json:"read"`
}

func newNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Notification feed maintenance",
	}

	var retention time.Duration
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired notifications and old read ones once",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if retention <= 0 {
				retention = cfg.ReadNotificationRetention
			}
			sweeper := notify.NewSweeper(db, notify.SweeperOptions{
				Retention: retention,
				Logger:    newLogger(),
			})

			start := time.Now()
			res, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(sweepOutput{
				Command:    "notifications sweep",
				DurationMS: time.Since(start).Milliseconds(),
				Expired:    res.Expired,
				Read:       res.Read,
			})
		},
	}
	sweep.Flags().DurationVar(&retention, "retention", 0, "Remove read notifications older than this (default READ_NOTIFICATION_RETENTION)")
	cmd.AddCommand(sweep)
	return cmd
}
