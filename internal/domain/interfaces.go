package domain

import (
	"context"
	"time"

	"salonbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ReservationRepository interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	UpdateReservationStatusWithVersion(ctx context.Context, id, version int64, status models.ReservationStatus) error
	ListReservations(ctx context.Context, filter models.ReservationFilter) ([]*models.Reservation, error)
	GetActiveReservationsInRange(ctx context.Context, professionalID int64, from, to time.Time) ([]*models.Reservation, error)
	GetPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Reservation, error)
}

type OverrideRepository interface {
	GetOverridesInRange(ctx context.Context, professionalID int64, from, to time.Time) ([]*models.AvailabilityOverride, error)
	GetOverrideAt(ctx context.Context, professionalID int64, start time.Time) (*models.AvailabilityOverride, error)
	CreateOverride(ctx context.Context, o *models.AvailabilityOverride) error
	UpdateOverrideStatus(ctx context.Context, id int64, status models.OverrideStatus) error
	DeleteOverride(ctx context.Context, id int64) error
	GetIrregularOverrides(ctx context.Context, professionalID int64) ([]*models.AvailabilityOverride, error)
	ReplaceOverrides(ctx context.Context, remove []int64, add []*models.AvailabilityOverride) error
}

type CatalogRepository interface {
	CreateProfessional(ctx context.Context, p *models.Professional) error
	UpdateProfessional(ctx context.Context, p *models.Professional) error
	GetProfessional(ctx context.Context, id int64) (*models.Professional, error)
	GetProfessionalByUserID(ctx context.Context, userID int64) (*models.Professional, error)
	GetProfessionalByTelegramChat(ctx context.Context, chatID int64) (*models.Professional, error)
	ListProfessionals(ctx context.Context, activeOnly bool) ([]*models.Professional, error)
	DeactivateProfessional(ctx context.Context, id int64) error

	CreateService(ctx context.Context, s *models.Service) error
	UpdateService(ctx context.Context, s *models.Service) error
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context, professionalID int64, activeOnly bool) ([]*models.Service, error)
	DeactivateService(ctx context.Context, id int64) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUserRole(ctx context.Context, id int64, role models.Role) error
}

type NotificationQueue interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
	MarkNotificationDone(ctx context.Context, id int64) error
	MarkNotificationRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, errMsg string) error
	MarkNotificationDead(ctx context.Context, id int64, errMsg string) error
}

// Repository is everything the SQLite store provides.
type Repository interface {
	ReservationRepository
	OverrideRepository
	CatalogRepository
	UserRepository
	NotificationQueue
}

// SlotReader is what booking and bot code need from the availability service.
type SlotReader interface {
	Slots(ctx context.Context, professionalID int64, date, now time.Time) ([]models.TimeSlot, error)
	SlotAt(ctx context.Context, professionalID int64, at, now time.Time) (models.TimeSlot, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, professionalID int64, payload interface{}) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Notifier enqueues deliveries about a reservation change.
type Notifier interface {
	ReservationChanged(ctx context.Context, r *models.Reservation, event string) error
}

// TelegramSender is the subset of the bot API the application calls.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetSelf() tgbotapi.User
}
