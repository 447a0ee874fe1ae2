package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverRateLimiter(t *testing.T) {
	primary := new(mockLimiter)
	fallback := new(mockLimiter)
	logger := zerolog.Nop()
	limiter := NewFailoverRateLimiter(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Allow", ctx, "k1", 5, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "k1", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallback", func(t *testing.T) {
		primary.On("Allow", ctx, "k2", 5, time.Minute).Return(false, errors.New("conn refused")).Once()
		fallback.On("Allow", ctx, "k2", 5, time.Minute).Return(false, nil).Once()

		allowed, err := limiter.Allow(ctx, "k2", 5, time.Minute)
		assert.NoError(t, err)
		assert.False(t, allowed)
		assert.True(t, limiter.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallback", func(t *testing.T) {
		fallback.On("Allow", ctx, "k3", 5, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "k3", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "Allow", ctx, "k3", 5, time.Minute)
	})

	t.Run("Recovery", func(t *testing.T) {
		limiter.mu.Lock()
		limiter.lastCheck = time.Now().Add(-2 * time.Minute)
		limiter.mu.Unlock()

		primary.On("Allow", ctx, "k4", 5, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "k4", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, limiter.isDown.Load())
	})
}
