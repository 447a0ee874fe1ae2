package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpiryJob declines pending reservations the professional never answered.
// A zero TTL disables it; the response window shown to clients is then purely
// informational.
type ExpiryJob struct {
	bookings *BookingService
	ttl      time.Duration
	interval time.Duration
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewExpiryJob(bookings *BookingService, ttl, interval time.Duration, logger *zerolog.Logger) *ExpiryJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryJob{
		bookings: bookings,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

func (j *ExpiryJob) Enabled() bool {
	return j.ttl > 0
}

// Start blocks until ctx is done.
func (j *ExpiryJob) Start(ctx context.Context) {
	if !j.Enabled() {
		j.logger.Info().Msg("Pending expiry disabled")
		return
	}

	j.logger.Info().Dur("ttl", j.ttl).Dur("interval", j.interval).Msg("Pending expiry started")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error().Err(err).Msg("Pending expiry run failed")
			}
		}
	}
}

// RunOnce expires everything older than the TTL and returns how many were declined.
func (j *ExpiryJob) RunOnce(ctx context.Context) (int, error) {
	if !j.Enabled() {
		return 0, nil
	}
	n, err := j.bookings.ExpirePending(ctx, j.now().Add(-j.ttl))
	if n > 0 {
		j.logger.Info().Int("count", n).Msg("Pending reservations expired")
	}
	return n, err
}
