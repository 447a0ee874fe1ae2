package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"salonbook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverRateLimiter uses the primary limiter (Redis) and switches to the
// fallback (memory) while the primary errors, retrying it once a minute.
type FailoverRateLimiter struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRateLimiter) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary rate limiter failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverRateLimiter) shouldRetryPrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) <= recoveryInterval {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

func (r *FailoverRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	} else if r.shouldRetryPrimary() {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			r.logger.Info().Msg("Primary rate limiter recovered")
			r.isDown.Store(false)
			return allowed, nil
		}
	}

	return r.fallback.Allow(ctx, key, limit, window)
}
