package api

import (
	"sync"

	"salonbook/internal/config"

	"golang.org/x/time/rate"
)

// keyLimiter keeps one token bucket per caller key.
type keyLimiter struct {
	limiters sync.Map
	rps      float64
	burst    int
}

func newKeyLimiter(cfg config.APIRateLimitConfig) *keyLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &keyLimiter{rps: cfg.RPS, burst: burst}
}

// Allow reports whether key may make another call now. A non-positive rate disables limiting.
func (l *keyLimiter) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	return l.get(key).Allow()
}

func (l *keyLimiter) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
