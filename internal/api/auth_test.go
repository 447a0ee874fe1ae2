package api

import (
	"context"
	"testing"
	"time"

	"salonbook/internal/auth"
	"salonbook/internal/config"
	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestAuthInterceptor(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "valid-key", Name: "widget", Permissions: []string{permReadAvailability}},
				{Key: "admin-key", Name: "partner"},
			},
		},
		RateLimit: config.APIRateLimitConfig{
			RPS:   100,
			Burst: 200,
		},
	}

	interceptor := NewAuthInterceptor(cfg, nil).Unary()
	handler := func(_ context.Context, req any) (any, error) {
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: methodGetSlots}

	t.Run("Success", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "valid-key"))
		resp, err := interceptor(ctx, "req", info, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("MissingKey", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs())
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "invalid"))
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "valid-key"))
		write := &grpc.UnaryServerInfo{FullMethod: methodCreateGuestBooking}
		_, err := interceptor(ctx, "req", write, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("EmptyPermissionsAllowAll", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "admin-key"))
		write := &grpc.UnaryServerInfo{FullMethod: methodCreateClientBooking}
		resp, err := interceptor(ctx, "req", write, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})
}

func TestAuthInterceptor_RateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{Enabled: false},
		RateLimit: config.APIRateLimitConfig{
			RPS:   1,
			Burst: 1,
		},
	}

	interceptor := NewAuthInterceptor(cfg, nil).Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "test"}
	handler := func(_ context.Context, req any) (any, error) { return "ok", nil }

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "key1"))

	_, err := interceptor(ctx, "req", info, handler)
	assert.NoError(t, err)

	_, err = interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// Другой ключ расходует свой бакет
	other := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "key2"))
	_, err = interceptor(other, "req", info, handler)
	assert.NoError(t, err)
}

func TestAuthInterceptor_Session(t *testing.T) {
	sessions := auth.NewManager(config.SessionConfig{Secret: "test-secret", TTL: time.Hour, Issuer: "salonbook-test"})
	token, _, err := sessions.Issue(&domain.Session{UserID: 7, Email: "c@example.com", Role: models.RoleClient})
	require.NoError(t, err)

	interceptor := NewAuthInterceptor(config.APIConfig{}, sessions).Unary()
	info := &grpc.UnaryServerInfo{FullMethod: methodCreateClientBooking}

	var seen *domain.Session
	handler := func(ctx context.Context, req any) (any, error) {
		seen = auth.SessionFromContext(ctx)
		return "ok", nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	_, err = interceptor(ctx, "req", info, handler)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, int64(7), seen.UserID)

	seen = nil
	_, err = interceptor(context.Background(), "req", info, handler)
	require.NoError(t, err)
	assert.Nil(t, seen, "no token means a guest")

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer garbage"))
	_, err = interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestLoggingUnaryInterceptor(t *testing.T) {
	interceptor := LoggingUnaryInterceptor(nil)
	handler := func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "test"}

	resp, err := interceptor(context.Background(), "req", info, handler)
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := zerolog.Nop()
	interceptor := RecoveryUnaryInterceptor(&logger)
	info := &grpc.UnaryServerInfo{FullMethod: "test"}

	_, err := interceptor(context.Background(), "req", info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{methodGetSlots, permReadAvailability},
		{methodListProfessionals, permReadAvailability},
		{methodCreateGuestBooking, permWriteBookings},
		{methodCreateClientBooking, permWriteBookings},
		{"other", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requiredPermission(tt.method))
	}
}
