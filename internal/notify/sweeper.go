package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivamkadam692/WorkConnect/internal/metrics"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

// SweeperOptions configures a Sweeper.
type SweeperOptions struct {
	Interval  time.Duration // default 10m
	Retention time.Duration // read notifications older than this are removed; default 30 days
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Sweeper periodically deletes expired notifications and old read ones.
type Sweeper struct {
	store  store.DataStore
	opts   SweeperOptions
	logger zerolog.Logger
}

// SweepResult counts what one pass removed.
type SweepResult struct {
	Expired int64
	Read    int64
}

// NewSweeper creates a sweeper.
func NewSweeper(ds store.DataStore, opts SweeperOptions) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{
		store:  ds,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := s.SweepOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Warn().Err(err).Msg("notification sweep failed")
		}
	}
}

// SweepOnce runs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.opts.Now()

	expired, err := s.store.DeleteExpiredNotifications(ctx, now)
	if err != nil {
		return res, err
	}
	res.Expired = expired
	metrics.NotificationsSwept.WithLabelValues("expired").Add(float64(expired))

	read, err := s.store.DeleteReadNotificationsBefore(ctx, now.Add(-s.opts.Retention))
	if err != nil {
		return res, err
	}
	res.Read = read
	metrics.NotificationsSwept.WithLabelValues("read_retention").Add(float64(read))

	if expired > 0 || read > 0 {
		s.logger.Info().Int64("expired", expired).Int64("read", read).Msg("notifications swept")
	}
	return res, nil
}
