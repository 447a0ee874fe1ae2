package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/metrics"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

// BookingService owns the reservation lifecycle: creation on both paths,
// professional decisions and client cancellation.
type BookingService struct {
	repo     domain.Repository
	slots    domain.SlotReader
	limiter  domain.RateLimiter
	eventBus domain.EventPublisher
	notifier domain.Notifier
	cfg      config.BookingConfig
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(
	repo domain.Repository,
	slots domain.SlotReader,
	limiter domain.RateLimiter,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.MaxAdvanceDays <= 0 {
		cfg.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if cfg.RateLimitCount <= 0 {
		cfg.RateLimitCount = models.RateLimitReservations
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = models.RateLimitWindow
	}
	return &BookingService{
		repo:     repo,
		slots:    slots,
		limiter:  limiter,
		eventBus: eventBus,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateGuestBooking books a slot for someone without an account.
func (s *BookingService) CreateGuestBooking(ctx context.Context, req models.BookingRequest) (*models.Reservation, error) {
	c, err := validateContact(req.ClientName, req.ClientEmail, req.ClientPhone, s.cfg.GuestPhoneRequired)
	if err != nil {
		metrics.IncRejection("validation")
		return nil, err
	}

	r := &models.Reservation{
		ClientName:     c.Name,
		ClientEmail:    c.Email,
		ClientPhone:    c.Phone,
		Guest:          true,
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		ScheduledAt:    req.ScheduledAt,
		Notes:          strings.TrimSpace(req.Notes),
	}
	if err := s.create(ctx, r, "guest:"+c.Email); err != nil {
		return nil, err
	}
	metrics.IncReservationCreated("guest")
	return r, nil
}

// CreateClientBooking books a slot on behalf of a signed-in user. Name and
// email fall back to the session's.
func (s *BookingService) CreateClientBooking(ctx context.Context, sess *domain.Session, req models.BookingRequest) (*models.Reservation, error) {
	if !sess.IsAuthenticated() {
		return nil, domain.ErrUnauthorized
	}

	name := req.ClientName
	if strings.TrimSpace(name) == "" {
		name = sess.Name
	}
	email := req.ClientEmail
	if strings.TrimSpace(email) == "" {
		email = sess.Email
	}
	c, err := validateContact(name, email, req.ClientPhone, false)
	if err != nil {
		metrics.IncRejection("validation")
		return nil, err
	}

	clientID := sess.UserID
	r := &models.Reservation{
		ClientID:       &clientID,
		ClientName:     c.Name,
		ClientEmail:    c.Email,
		ClientPhone:    c.Phone,
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		ScheduledAt:    req.ScheduledAt,
		Notes:          strings.TrimSpace(req.Notes),
	}
	if err := s.create(ctx, r, "user:"+strconv.FormatInt(sess.UserID, 10)); err != nil {
		return nil, err
	}
	metrics.IncReservationCreated("client")
	return r, nil
}

func (s *BookingService) create(ctx context.Context, r *models.Reservation, limitKey string) error {
	now := s.now()

	if err := s.checkRateLimit(ctx, limitKey); err != nil {
		return err
	}

	if r.ScheduledAt.After(now.AddDate(0, 0, s.cfg.MaxAdvanceDays)) {
		metrics.IncRejection("too_far")
		return domain.ErrDateTooFar
	}

	p, err := s.repo.GetProfessional(ctx, r.ProfessionalID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		metrics.IncRejection("professional_inactive")
		return domain.ErrProfessionalInactive
	}

	if r.ServiceID != nil {
		if err := s.checkService(ctx, *r.ServiceID, p.ID); err != nil {
			return err
		}
	}

	// Повторная проверка слота на момент отправки
	slot, err := s.slots.SlotAt(ctx, p.ID, r.ScheduledAt, now)
	if err != nil {
		return err
	}
	if !slot.Status.Bookable() {
		if r.ScheduledAt.Before(now) {
			metrics.IncRejection("past_slot")
			return domain.ErrPastSlot
		}
		metrics.IncRejection("slot_unavailable")
		return domain.ErrSlotUnavailable
	}

	r.Status = models.StatusPending
	if err := s.repo.CreateReservation(ctx, r); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncRejection("slot_taken")
			return domain.ErrSlotUnavailable
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("professional_id", r.ProfessionalID).
		Time("scheduled_at", r.ScheduledAt).
		Bool("guest", r.Guest).
		Msg("Reservation created")

	s.publishEvent(events.EventReservationCreated, r, "", 0)
	s.notify(ctx, r, models.NotifyCreated)
	return nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, key, s.cfg.RateLimitCount, s.cfg.RateLimitWindow)
	if err != nil {
		// Ограничитель не должен блокировать запись
		s.logger.Warn().Err(err).Str("key", key).Msg("Rate limiter failed, allowing request")
		return nil
	}
	if !allowed {
		metrics.IncRejection("rate_limited")
		return domain.ErrRateLimited
	}
	return nil
}

func (s *BookingService) checkService(ctx context.Context, serviceID, professionalID int64) error {
	svc, err := s.repo.GetService(ctx, serviceID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidService
	}
	if err != nil {
		return fmt.Errorf("failed to load service: %w", err)
	}
	if svc.ProfessionalID != professionalID || !svc.IsActive {
		return domain.ErrInvalidService
	}
	return nil
}

// ConfirmBooking accepts a pending request. version 0 skips the staleness check.
func (s *BookingService) ConfirmBooking(ctx context.Context, sess *domain.Session, id, version int64) (*models.Reservation, error) {
	return s.transition(ctx, sess, id, version, models.StatusConfirmed, s.authorizeProfessional)
}

func (s *BookingService) DeclineBooking(ctx context.Context, sess *domain.Session, id, version int64) (*models.Reservation, error) {
	return s.transition(ctx, sess, id, version, models.StatusDeclined, s.authorizeProfessional)
}

func (s *BookingService) CompleteBooking(ctx context.Context, sess *domain.Session, id, version int64) (*models.Reservation, error) {
	return s.transition(ctx, sess, id, version, models.StatusCompleted, s.authorizeProfessional)
}

// CancelBooking is the client's withdrawal of their own reservation.
func (s *BookingService) CancelBooking(ctx context.Context, sess *domain.Session, id, version int64) (*models.Reservation, error) {
	return s.transition(ctx, sess, id, version, models.StatusCancelled, s.authorizeClient)
}

func (s *BookingService) authorizeProfessional(sess *domain.Session, r *models.Reservation) error {
	if !sess.IsAuthenticated() {
		return domain.ErrUnauthorized
	}
	if !sess.CanManageProfessional(r.ProfessionalID) {
		return domain.ErrForbidden
	}
	return nil
}

func (s *BookingService) authorizeClient(sess *domain.Session, r *models.Reservation) error {
	if !sess.IsAuthenticated() {
		return domain.ErrUnauthorized
	}
	if !sess.IsAdmin() && !sess.OwnsReservation(r) {
		return domain.ErrForbidden
	}
	return nil
}

func (s *BookingService) transition(
	ctx context.Context,
	sess *domain.Session,
	id, version int64,
	target models.ReservationStatus,
	authorize func(*domain.Session, *models.Reservation) error,
) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, r); err != nil {
		return nil, err
	}
	if version != 0 && version != r.Version {
		return nil, domain.ErrConcurrentModification
	}
	return s.applyTransition(ctx, r, target, sess.UserIDOrZero(), NotifyEvent(target))
}

func (s *BookingService) applyTransition(ctx context.Context, r *models.Reservation, target models.ReservationStatus, actorID int64, event string) (*models.Reservation, error) {
	if !r.Status.CanTransitionTo(target) {
		metrics.IncRejection("invalid_transition")
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.Status, target)
	}

	if err := s.repo.UpdateReservationStatusWithVersion(ctx, r.ID, r.Version, target); err != nil {
		return nil, err
	}

	previous := r.Status
	updated, err := s.repo.GetReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload reservation: %w", err)
	}

	metrics.IncTransition(string(target))
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("from", string(previous)).
		Str("to", string(target)).
		Int64("actor_id", actorID).
		Msg("Reservation status changed")

	s.publishEvent(events.EventReservationStatusChanged, updated, previous, actorID)
	s.notify(ctx, updated, event)
	return updated, nil
}

// GetReservation returns a reservation the session may see: its client, the
// professional it is booked with, or an admin.
func (s *BookingService) GetReservation(ctx context.Context, sess *domain.Session, id int64) (*models.Reservation, error) {
	if !sess.IsAuthenticated() {
		return nil, domain.ErrUnauthorized
	}
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.OwnsReservation(r) && !sess.CanManageProfessional(r.ProfessionalID) {
		return nil, domain.ErrForbidden
	}
	return r, nil
}

// ListForProfessional lists a professional's reservations in [from, to).
func (s *BookingService) ListForProfessional(ctx context.Context, sess *domain.Session, professionalID int64, from, to time.Time, status models.ReservationStatus) ([]*models.Reservation, error) {
	if !sess.IsAuthenticated() {
		return nil, domain.ErrUnauthorized
	}
	if !sess.CanManageProfessional(professionalID) {
		return nil, domain.ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	return s.repo.ListReservations(ctx, models.ReservationFilter{
		ProfessionalID: professionalID,
		From:           from,
		To:             to,
		Status:         status,
	})
}

// ListForClient lists the session user's own reservations.
func (s *BookingService) ListForClient(ctx context.Context, sess *domain.Session) ([]*models.Reservation, error) {
	if !sess.IsAuthenticated() {
		return nil, domain.ErrUnauthorized
	}
	return s.repo.ListReservations(ctx, models.ReservationFilter{ClientID: sess.UserID})
}

// ListAll is the admin view over every reservation.
func (s *BookingService) ListAll(ctx context.Context, sess *domain.Session, filter models.ReservationFilter) ([]*models.Reservation, error) {
	if !sess.IsAuthenticated() {
		return nil, domain.ErrUnauthorized
	}
	if !sess.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	return s.repo.ListReservations(ctx, filter)
}

// ExpirePending declines pending reservations created before cutoff. Each
// reservation goes through the normal transition so a concurrent decision by
// the professional wins.
func (s *BookingService) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	pending, err := s.repo.GetPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending reservations: %w", err)
	}

	expired := 0
	for _, r := range pending {
		if _, err := s.applyTransition(ctx, r, models.StatusDeclined, 0, models.NotifyExpired); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) || errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *BookingService) publishEvent(eventType string, r *models.Reservation, previous models.ReservationStatus, actorID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.ReservationEventPayload{
		ReservationID:  r.ID,
		ProfessionalID: r.ProfessionalID,
		ClientName:     r.ClientName,
		ScheduledAt:    r.ScheduledAt,
		Status:         string(r.Status),
		PreviousStatus: string(previous),
		Guest:          r.Guest,
		ChangedByID:    actorID,
	}
	if r.ClientID != nil {
		payload.ClientID = *r.ClientID
	}
	if r.ServiceID != nil {
		payload.ServiceID = *r.ServiceID
	}

	if err := s.eventBus.PublishJSON(eventType, r.ProfessionalID, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("Failed to publish event")
	}
}

func (s *BookingService) notify(ctx context.Context, r *models.Reservation, event string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ReservationChanged(ctx, r, event); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Str("event", event).Msg("Failed to enqueue notification")
	}
}
