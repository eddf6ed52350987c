package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// NotificationSweeper runs both sweeps on a fixed interval inside the process.
type NotificationSweeper struct {
	notifications NotificationService
	interval      time.Duration
	logger        zerolog.Logger
}

// NewNotificationSweeper constructs a sweeper. A non-positive interval makes Run return immediately.
func NewNotificationSweeper(notifications NotificationService, interval time.Duration, logger zerolog.Logger) *NotificationSweeper {
	return &NotificationSweeper{
		notifications: notifications,
		interval:      interval,
		logger:        logger.With().Str("component", "notification_sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (s *NotificationSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *NotificationSweeper) sweepOnce(ctx context.Context) {
	if _, err := s.notifications.ScanOverdue(ctx); err != nil {
		s.logger.Error().Err(err).Msg("overdue sweep failed")
	}
	if _, err := s.notifications.ScanUpcoming(ctx); err != nil {
		s.logger.Error().Err(err).Msg("upcoming sweep failed")
	}
}
