package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the session carried inside a signed token.
type Claims struct {
	jwt.RegisteredClaims
	Email          string      `json:"email"`
	Name           string      `json:"name"`
	Role           models.Role `json:"role"`
	ProfessionalID int64       `json:"professional_id,omitempty"`
}

// Manager issues and verifies HMAC-signed session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewManager(cfg config.SessionConfig) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// Issue signs a token for the session and returns it with its expiry.
func (m *Manager) Issue(sess *domain.Session) (string, time.Time, error) {
	if !sess.IsAuthenticated() {
		return "", time.Time{}, domain.ErrUnauthorized
	}

	now := m.now()
	expires := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(sess.UserID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email:          sess.Email,
		Name:           sess.Name,
		Role:           sess.Role,
		ProfessionalID: sess.ProfessionalID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expires, nil
}

// Parse verifies a token and returns the session it carries. Every failure
// wraps domain.ErrUnauthorized.
func (m *Manager) Parse(tokenString string) (*domain.Session, error) {
	var claims Claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: session expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("%w: invalid subject", domain.ErrUnauthorized)
	}
	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	return &domain.Session{
		UserID:         userID,
		Email:          claims.Email,
		Name:           claims.Name,
		Role:           claims.Role,
		ProfessionalID: claims.ProfessionalID,
	}, nil
}

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, sess *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns nil for anonymous requests.
func SessionFromContext(ctx context.Context) *domain.Session {
	sess, _ := ctx.Value(sessionKey).(*domain.Session)
	return sess
}
