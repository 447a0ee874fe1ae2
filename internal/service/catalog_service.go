package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService manages professionals and the services they offer.
type CatalogService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewCatalogService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// ListProfessionals returns active professionals; admins may include inactive ones.
func (s *CatalogService) ListProfessionals(ctx context.Context, sess *domain.Session, includeInactive bool) ([]*models.Professional, error) {
	activeOnly := !(includeInactive && sess.IsAdmin())
	return s.repo.ListProfessionals(ctx, activeOnly)
}

func (s *CatalogService) GetProfessional(ctx context.Context, id int64) (*models.Professional, error) {
	return s.repo.GetProfessional(ctx, id)
}

// CreateProfessional is admin-only. Linking a user account promotes it to the
// professional role.
func (s *CatalogService) CreateProfessional(ctx context.Context, sess *domain.Session, p *models.Professional) error {
	if !sess.IsAdmin() {
		return domain.ErrForbidden
	}
	p.Name = strings.TrimSpace(p.Name)
	if err := validateProfessional(p); err != nil {
		return err
	}
	if p.UserID != nil {
		if _, err := s.repo.GetUserByID(ctx, *p.UserID); err != nil {
			return err
		}
	}

	p.IsActive = true
	if err := s.repo.CreateProfessional(ctx, p); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return fmt.Errorf("%w: user is already linked to a professional", domain.ErrInvalidInput)
		}
		return err
	}
	if err := s.promote(ctx, p.UserID); err != nil {
		return err
	}

	s.logger.Info().Int64("professional_id", p.ID).Str("name", p.Name).Msg("Professional created")
	s.publish(events.EventProfessionalChanged, p.ID, p.ID, events.ActionCreated)
	return nil
}

func (s *CatalogService) promote(ctx context.Context, userID *int64) error {
	if userID == nil {
		return nil
	}
	u, err := s.repo.GetUserByID(ctx, *userID)
	if err != nil {
		return err
	}
	if u.Role == models.RoleAdmin || u.Role == models.RoleProfessional {
		return nil
	}
	return s.repo.UpdateUserRole(ctx, u.ID, models.RoleProfessional)
}

// ProfessionalUpdate carries the editable fields. Nil means unchanged. Only
// admins may change the account link or the active flag.
type ProfessionalUpdate struct {
	Name           *string              `json:"name,omitempty"`
	Bio            *string              `json:"bio,omitempty"`
	WorkingHours   *models.WorkingHours `json:"working_hours,omitempty"`
	Timezone       *string              `json:"timezone,omitempty"`
	TelegramChatID *int64               `json:"telegram_chat_id,omitempty"`
	UserID         *int64               `json:"user_id,omitempty"`
	IsActive       *bool                `json:"is_active,omitempty"`
}

func (s *CatalogService) UpdateProfessional(ctx context.Context, sess *domain.Session, id int64, upd ProfessionalUpdate) (*models.Professional, error) {
	if !sess.CanManageProfessional(id) {
		return nil, domain.ErrForbidden
	}
	if (upd.UserID != nil || upd.IsActive != nil) && !sess.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	p, err := s.repo.GetProfessional(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Bio != nil {
		p.Bio = *upd.Bio
	}
	if upd.WorkingHours != nil {
		p.WorkingHours = *upd.WorkingHours
	}
	if upd.Timezone != nil {
		p.Timezone = *upd.Timezone
	}
	if upd.TelegramChatID != nil {
		p.TelegramChatID = *upd.TelegramChatID
	}
	if upd.UserID != nil {
		p.UserID = upd.UserID
	}
	if upd.IsActive != nil {
		p.IsActive = *upd.IsActive
	}

	if err := validateProfessional(p); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfessional(ctx, p); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("%w: user is already linked to a professional", domain.ErrInvalidInput)
		}
		return nil, err
	}
	if upd.UserID != nil {
		if err := s.promote(ctx, upd.UserID); err != nil {
			return nil, err
		}
	}

	s.publish(events.EventProfessionalChanged, p.ID, p.ID, events.ActionUpdated)
	return p, nil
}

func (s *CatalogService) DeactivateProfessional(ctx context.Context, sess *domain.Session, id int64) error {
	if !sess.IsAdmin() {
		return domain.ErrForbidden
	}
	if err := s.repo.DeactivateProfessional(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("professional_id", id).Msg("Professional deactivated")
	s.publish(events.EventProfessionalChanged, id, id, events.ActionDeleted)
	return nil
}

// ListServices returns a professional's active services. professionalID 0 lists all.
func (s *CatalogService) ListServices(ctx context.Context, professionalID int64) ([]*models.Service, error) {
	return s.repo.ListServices(ctx, professionalID, true)
}

func (s *CatalogService) CreateService(ctx context.Context, sess *domain.Session, svc *models.Service) error {
	if !sess.CanManageProfessional(svc.ProfessionalID) {
		return domain.ErrForbidden
	}
	svc.Name = strings.TrimSpace(svc.Name)
	svc.Category = strings.TrimSpace(svc.Category)
	if err := validateService(svc); err != nil {
		return err
	}
	if _, err := s.repo.GetProfessional(ctx, svc.ProfessionalID); err != nil {
		return err
	}

	svc.IsActive = true
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return err
	}
	s.publish(events.EventServiceChanged, svc.ProfessionalID, svc.ID, events.ActionCreated)
	return nil
}

// UpdateService replaces the editable fields of a service. The owner cannot change.
func (s *CatalogService) UpdateService(ctx context.Context, sess *domain.Session, svc *models.Service) error {
	existing, err := s.repo.GetService(ctx, svc.ID)
	if err != nil {
		return err
	}
	if !sess.CanManageProfessional(existing.ProfessionalID) {
		return domain.ErrForbidden
	}

	svc.ProfessionalID = existing.ProfessionalID
	svc.Name = strings.TrimSpace(svc.Name)
	svc.Category = strings.TrimSpace(svc.Category)
	if err := validateService(svc); err != nil {
		return err
	}
	if err := s.repo.UpdateService(ctx, svc); err != nil {
		return err
	}
	s.publish(events.EventServiceChanged, svc.ProfessionalID, svc.ID, events.ActionUpdated)
	return nil
}

func (s *CatalogService) DeactivateService(ctx context.Context, sess *domain.Session, id int64) error {
	existing, err := s.repo.GetService(ctx, id)
	if err != nil {
		return err
	}
	if !sess.CanManageProfessional(existing.ProfessionalID) {
		return domain.ErrForbidden
	}
	if err := s.repo.DeactivateService(ctx, id); err != nil {
		return err
	}
	s.publish(events.EventServiceChanged, existing.ProfessionalID, id, events.ActionDeleted)
	return nil
}

func (s *CatalogService) publish(eventType string, professionalID, id int64, action string) {
	if s.eventBus == nil {
		return
	}
	payload := events.CatalogEventPayload{ID: id, ProfessionalID: professionalID, Action: action}
	if err := s.eventBus.PublishJSON(eventType, professionalID, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to publish event")
	}
}
