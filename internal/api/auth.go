package api

import (
	"context"
	"crypto/subtle"
	"strings"

	"salonbook/internal/auth"
	"salonbook/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault  = "x-api-key"
	permReadAvailability = "read:availability"
	permWriteBookings    = "write:bookings"
	clientKeyUnknown     = "unknown"
)

// AuthInterceptor checks machine API keys, attaches end-user sessions carried
// as bearer tokens and rate limits per key.
type AuthInterceptor struct {
	cfg      config.APIConfig
	sessions *auth.Manager
	clients  []config.APIClientKey
	limiter  *keyLimiter
}

func NewAuthInterceptor(cfg config.APIConfig, sessions *auth.Manager) *AuthInterceptor {
	return &AuthInterceptor{
		cfg:      cfg,
		sessions: sessions,
		clients:  cfg.Auth.APIKeys,
		limiter:  newKeyLimiter(cfg.RateLimit),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(ctx, info.FullMethod); err != nil {
				return nil, err
			}
		}
		if !a.limiter.Allow(a.clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}

		ctx, err := a.attachSession(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) headerName() string {
	h := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (a *AuthInterceptor) checkAuth(ctx context.Context, fullMethod string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKey := first(md.Get(a.headerName()))
	if apiKey == "" {
		return status.Error(codes.Unauthenticated, "missing api key")
	}

	client, ok := a.lookup(apiKey)
	if !ok {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return checkPermissions(client, fullMethod)
}

func (a *AuthInterceptor) lookup(apiKey string) (config.APIClientKey, bool) {
	for _, c := range a.clients {
		if subtle.ConstantTimeCompare([]byte(c.Key), []byte(apiKey)) == 1 {
			return c, true
		}
	}
	return config.APIClientKey{}, false
}

func checkPermissions(client config.APIClientKey, fullMethod string) error {
	required := requiredPermission(fullMethod)
	if required == "" {
		return nil
	}

	// Пустой список прав означает полный доступ
	if len(client.Permissions) == 0 {
		return nil
	}

	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return status.Error(codes.PermissionDenied, "permission denied")
}

func requiredPermission(fullMethod string) string {
	switch fullMethod {
	case methodGetSlots, methodListProfessionals:
		return permReadAvailability
	case methodCreateGuestBooking, methodCreateClientBooking:
		return permWriteBookings
	default:
		return ""
	}
}

// attachSession parses an optional "authorization: Bearer <jwt>" entry.
func (a *AuthInterceptor) attachSession(ctx context.Context) (context.Context, error) {
	if a.sessions == nil {
		return ctx, nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	raw := first(md.Get("authorization"))
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return ctx, nil
	}
	sess, err := a.sessions.Parse(strings.TrimSpace(raw[7:]))
	if err != nil {
		return ctx, grpcError(err)
	}
	return auth.WithSession(ctx, sess), nil
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.headerName())); apiKey != "" {
		return apiKey
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
