package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	repo     domain.Repository
	logger   *zerolog.Logger
	hashCost int
}

func NewUserService(repo domain.Repository, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
}

// RegisterRequest is the self-service sign-up payload. New accounts are always clients.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	return s.createUser(ctx, req, models.RoleClient)
}

func (s *UserService) createUser(ctx context.Context, req RegisterRequest, role models.Role) (*models.User, error) {
	c, err := validateContact(req.Name, req.Email, req.Phone, false)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &models.User{
		Email:        c.Email,
		Name:         c.Name,
		Phone:        c.Phone,
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}

	s.logger.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("User registered")
	return u, nil
}

// Authenticate checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return u, nil
}

// SessionFor builds the session for a user, attaching the linked professional
// for professional accounts.
func (s *UserService) SessionFor(ctx context.Context, u *models.User) (*domain.Session, error) {
	sess := &domain.Session{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}
	if u.Role != models.RoleProfessional {
		return sess, nil
	}

	p, err := s.repo.GetProfessionalByUserID(ctx, u.ID)
	switch {
	case err == nil:
		sess.ProfessionalID = p.ID
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Warn().Int64("user_id", u.ID).Msg("Professional account has no linked professional")
	default:
		return nil, err
	}
	return sess, nil
}

func (s *UserService) ListUsers(ctx context.Context, sess *domain.Session) ([]*models.User, error) {
	if !sess.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.repo.ListUsers(ctx)
}

func (s *UserService) SetRole(ctx context.Context, sess *domain.Session, userID int64, role string) (*models.User, error) {
	if !sess.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	r, err := models.ParseRole(strings.TrimSpace(role))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.repo.UpdateUserRole(ctx, userID, r); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", userID).Str("role", string(r)).Int64("by", sess.UserID).Msg("User role changed")
	return s.repo.GetUserByID(ctx, userID)
}

// EnsureAdmins creates configured admin accounts that do not exist yet.
// Existing accounts are left untouched.
func (s *UserService) EnsureAdmins(ctx context.Context, seeds []config.AdminSeed) error {
	for _, seed := range seeds {
		// Незаполненный шаблон из конфига
		if NormalizeEmail(seed.Email) == "" {
			continue
		}
		_, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(seed.Email))
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		name := seed.Name
		if name == "" {
			name = "Administrator"
		}
		if _, err := s.createUser(ctx, RegisterRequest{Email: seed.Email, Name: name, Password: seed.Password}, models.RoleAdmin); err != nil {
			return fmt.Errorf("seed admin %s: %w", seed.Email, err)
		}
	}
	return nil
}
