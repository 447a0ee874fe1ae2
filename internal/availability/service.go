package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/metrics"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

// Store is the slice of the repository the availability service reads and writes.
type Store interface {
	GetProfessional(ctx context.Context, id int64) (*models.Professional, error)
	GetActiveReservationsInRange(ctx context.Context, professionalID int64, from, to time.Time) ([]*models.Reservation, error)
	domain.OverrideRepository
}

type Service struct {
	store    Store
	defaults models.WorkingHours
	loc      *time.Location
	events   domain.EventPublisher
	logger   *zerolog.Logger
}

func NewService(store Store, defaults models.WorkingHours, loc *time.Location, publisher domain.EventPublisher, logger *zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    store,
		defaults: defaults,
		loc:      loc,
		events:   publisher,
		logger:   logger,
	}
}

// NormalizeResult reports what NormalizeOverrides changed.
type NormalizeResult struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Dropped int `json:"dropped"`
}

func (s *Service) hoursFor(p *models.Professional) models.WorkingHours {
	if p.WorkingHours.Open == "" || p.WorkingHours.Close == "" {
		return s.defaults
	}
	return p.WorkingHours
}

// Location returns the time zone a professional's day is laid out in.
func (s *Service) Location(p *models.Professional) *time.Location {
	return p.Location(s.loc)
}

func (s *Service) professional(ctx context.Context, id int64) (*models.Professional, error) {
	p, err := s.store.GetProfessional(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("professional %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load professional: %w", err)
	}
	return p, nil
}

// Slots resolves every slot of the professional's day that contains date's
// calendar fields. Any load failure yields nil slots and the error.
func (s *Service) Slots(ctx context.Context, professionalID int64, date, now time.Time) ([]models.TimeSlot, error) {
	p, err := s.professional(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	return s.slotsFor(ctx, p, date, now)
}

func (s *Service) slotsFor(ctx context.Context, p *models.Professional, date, now time.Time) ([]models.TimeSlot, error) {
	loc := s.Location(p)
	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	reservations, err := s.store.GetActiveReservationsInRange(ctx, p.ID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}
	overrides, err := s.store.GetOverridesInRange(ctx, p.ID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}

	return Resolve(DayInput{
		Date:         dayStart,
		Location:     loc,
		Hours:        s.hoursFor(p),
		Reservations: reservations,
		Overrides:    overrides,
		Now:          now,
	})
}

// SlotAt resolves the single slot starting at `at`. ErrInvalidSlot means `at`
// is not a slot start inside the working window.
func (s *Service) SlotAt(ctx context.Context, professionalID int64, at, now time.Time) (models.TimeSlot, error) {
	p, err := s.professional(ctx, professionalID)
	if err != nil {
		return models.TimeSlot{}, err
	}
	return s.slotAt(ctx, p, at, now)
}

func (s *Service) slotAt(ctx context.Context, p *models.Professional, at, now time.Time) (models.TimeSlot, error) {
	slots, err := s.slotsFor(ctx, p, at.In(s.Location(p)), now)
	if err != nil {
		return models.TimeSlot{}, err
	}
	for _, slot := range slots {
		if slot.Datetime.Equal(at) {
			return slot, nil
		}
	}
	return models.TimeSlot{}, domain.ErrInvalidSlot
}

// guardSlot rejects booked, past and off-grid slots, then normalizes legacy
// overrides so the mutation sees aligned rows only.
func (s *Service) guardSlot(ctx context.Context, sess *domain.Session, professionalID int64, at, now time.Time) (*models.Professional, error) {
	if !sess.CanManageProfessional(professionalID) {
		return nil, domain.ErrForbidden
	}
	p, err := s.professional(ctx, professionalID)
	if err != nil {
		return nil, err
	}

	// Нерегулярные записи резолвер не учитывает, поэтому проверки идут до нормализации
	slot, err := s.slotAt(ctx, p, at, now)
	if err != nil {
		return nil, err
	}
	if slot.Status == models.SlotBooked {
		metrics.IncRejection("slot_booked")
		return nil, domain.ErrSlotBooked
	}
	if at.Before(now) {
		metrics.IncRejection("past_slot")
		return nil, domain.ErrPastSlot
	}

	if err := s.normalizeFor(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetSlotStatus sets the professional's status for the slot starting at `at`.
// An existing override is updated in place; otherwise a one-slot override is
// created, unless the target is the implicit default (available). The returned
// override is nil when nothing is stored for the slot.
func (s *Service) SetSlotStatus(ctx context.Context, sess *domain.Session, professionalID int64, at time.Time, target models.OverrideStatus, now time.Time) (*models.AvailabilityOverride, error) {
	if !target.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if _, err := s.guardSlot(ctx, sess, professionalID, at, now); err != nil {
		return nil, err
	}

	existing, err := s.store.GetOverrideAt(ctx, professionalID, at)
	switch {
	case err == nil:
		return s.updateOverride(ctx, existing, target)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("failed to load override: %w", err)
	}

	if target == models.OverrideAvailable {
		return nil, nil
	}

	o := &models.AvailabilityOverride{
		ProfessionalID: professionalID,
		StartAt:        at,
		EndAt:          at.Add(models.SlotDuration),
		Status:         target,
	}
	if err := s.store.CreateOverride(ctx, o); err != nil {
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create override: %w", err)
		}
		// Параллельная запись успела первой, обновляем её
		existing, err := s.store.GetOverrideAt(ctx, professionalID, at)
		if err != nil {
			return nil, fmt.Errorf("failed to load override: %w", err)
		}
		return s.updateOverride(ctx, existing, target)
	}

	s.logger.Info().Int64("professional_id", professionalID).Time("start_at", at).Str("status", string(target)).Msg("Override created")
	s.publish(o, events.ActionCreated)
	return o, nil
}

func (s *Service) updateOverride(ctx context.Context, o *models.AvailabilityOverride, target models.OverrideStatus) (*models.AvailabilityOverride, error) {
	if o.Status == target {
		return o, nil
	}
	if err := s.store.UpdateOverrideStatus(ctx, o.ID, target); err != nil {
		return nil, fmt.Errorf("failed to update override: %w", err)
	}
	o.Status = target
	s.publish(o, events.ActionUpdated)
	return o, nil
}

// ClearSlotOverride removes the override for the slot, returning it to the
// default. Clearing a slot with no override is a no-op.
func (s *Service) ClearSlotOverride(ctx context.Context, sess *domain.Session, professionalID int64, at, now time.Time) error {
	if _, err := s.guardSlot(ctx, sess, professionalID, at, now); err != nil {
		return err
	}

	existing, err := s.store.GetOverrideAt(ctx, professionalID, at)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load override: %w", err)
	}
	if err := s.store.DeleteOverride(ctx, existing.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	s.publish(existing, events.ActionDeleted)
	return nil
}

// ListOverrides returns stored overrides starting in [from, to).
func (s *Service) ListOverrides(ctx context.Context, professionalID int64, from, to time.Time) ([]*models.AvailabilityOverride, error) {
	list, err := s.store.GetOverridesInRange(ctx, professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	return list, nil
}

// NormalizeOverrides rewrites every override that does not span exactly one
// slot into slot-sized overrides on the professional's grid. professionalID 0
// normalizes all professionals.
func (s *Service) NormalizeOverrides(ctx context.Context, professionalID int64) (NormalizeResult, error) {
	var result NormalizeResult

	irregular, err := s.store.GetIrregularOverrides(ctx, professionalID)
	if err != nil {
		return result, fmt.Errorf("failed to load irregular overrides: %w", err)
	}

	byProfessional := make(map[int64][]*models.AvailabilityOverride)
	var order []int64
	for _, o := range irregular {
		if _, ok := byProfessional[o.ProfessionalID]; !ok {
			order = append(order, o.ProfessionalID)
		}
		byProfessional[o.ProfessionalID] = append(byProfessional[o.ProfessionalID], o)
	}

	for _, id := range order {
		p, err := s.professional(ctx, id)
		if err != nil {
			return result, err
		}
		r, err := s.replaceIrregular(ctx, p, byProfessional[id])
		if err != nil {
			return result, err
		}
		result.Scanned += r.Scanned
		result.Created += r.Created
		result.Dropped += r.Dropped
	}

	if result.Scanned > 0 {
		s.logger.Info().
			Int("scanned", result.Scanned).
			Int("created", result.Created).
			Int("dropped", result.Dropped).
			Msg("Irregular overrides normalized")
	}
	return result, nil
}

func (s *Service) normalizeFor(ctx context.Context, p *models.Professional) error {
	irregular, err := s.store.GetIrregularOverrides(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load irregular overrides: %w", err)
	}
	if len(irregular) == 0 {
		return nil
	}
	_, err = s.replaceIrregular(ctx, p, irregular)
	return err
}

func (s *Service) replaceIrregular(ctx context.Context, p *models.Professional, irregular []*models.AvailabilityOverride) (NormalizeResult, error) {
	result := NormalizeResult{Scanned: len(irregular)}
	loc := s.Location(p)
	hours := s.hoursFor(p)

	remove := make([]int64, 0, len(irregular))
	var add []*models.AvailabilityOverride
	for _, o := range irregular {
		pieces, complete, err := splitOverride(o, loc, hours)
		if err != nil {
			return result, err
		}
		if !complete {
			result.Dropped++
			s.logger.Warn().
				Int64("override_id", o.ID).
				Int64("professional_id", o.ProfessionalID).
				Time("start_at", o.StartAt).
				Time("end_at", o.EndAt).
				Msg("Override range partly off the slot grid, fragment dropped")
		}
		remove = append(remove, o.ID)
		add = append(add, pieces...)
	}

	if err := s.store.ReplaceOverrides(ctx, remove, add); err != nil {
		return result, fmt.Errorf("failed to replace overrides: %w", err)
	}
	for _, o := range add {
		if o.ID != 0 {
			result.Created++
		}
	}
	if result.Created > 0 || len(remove) > 0 {
		_ = s.publishOverride(p.ID, &models.AvailabilityOverride{ProfessionalID: p.ID}, events.ActionUpdated)
	}
	return result, nil
}

func (s *Service) publish(o *models.AvailabilityOverride, action string) {
	if err := s.publishOverride(o.ProfessionalID, o, action); err != nil {
		s.logger.Warn().Err(err).Int64("override_id", o.ID).Msg("Failed to publish override event")
	}
}

func (s *Service) publishOverride(professionalID int64, o *models.AvailabilityOverride, action string) error {
	if s.events == nil {
		return nil
	}
	return s.events.PublishJSON(events.EventOverrideChanged, professionalID, events.OverrideEventPayload{
		OverrideID:     o.ID,
		ProfessionalID: professionalID,
		StartAt:        o.StartAt,
		EndAt:          o.EndAt,
		Status:         string(o.Status),
		Action:         action,
	})
}
