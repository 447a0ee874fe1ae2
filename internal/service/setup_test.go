package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"salonbook/internal/availability"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/models"
	"salonbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testHours = models.WorkingHours{Open: "09:00", Close: "22:00"}

type testEnv struct {
	db       *database.DB
	slots    *availability.Service
	bookings *BookingService
	catalog  *CatalogService
	users    *UserService
	pro      *models.Professional
	proSess  *domain.Session
	admin    *domain.Session
	now      time.Time

	mu     sync.Mutex
	events []*events.Event
}

func setup(t *testing.T) *testEnv {
	return setupWithConfig(t, config.BookingConfig{
		MaxAdvanceDays:     90,
		RateLimitCount:     100,
		RateLimitWindow:    time.Minute,
		GuestPhoneRequired: true,
	})
}

func setupWithConfig(t *testing.T, cfg config.BookingConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pro := &models.Professional{Name: "Anna", WorkingHours: testHours, Timezone: "UTC", IsActive: true}
	require.NoError(t, db.CreateProfessional(context.Background(), pro))

	env := &testEnv{
		db:      db,
		pro:     pro,
		proSess: &domain.Session{UserID: 50, Role: models.RoleProfessional, ProfessionalID: pro.ID},
		admin:   &domain.Session{UserID: 1, Role: models.RoleAdmin},
		now:     time.Date(2030, time.June, 10, 8, 0, 0, 0, time.UTC),
	}

	bus := events.NewEventBus()
	bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.events = append(env.events, e)
		return nil
	})

	env.slots = availability.NewService(db, testHours, time.UTC, bus, &logger)
	notifier := NewOutboxNotifier(db, []string{models.ChannelTelegram, models.ChannelEmail}, &logger)
	env.bookings = NewBookingService(db, env.slots, repository.NewMemoryRateLimiter(), bus, notifier, cfg, &logger)
	env.bookings.now = func() time.Time { return env.now }
	env.catalog = NewCatalogService(db, bus, &logger)
	env.users = NewUserService(db, &logger)
	env.users.hashCost = bcrypt.MinCost
	return env
}

func (e *testEnv) eventTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		types = append(types, ev.Type)
	}
	return types
}

// at returns a slot start on the test day.
func (e *testEnv) at(hour, minute int) time.Time {
	return time.Date(2030, time.June, 10, hour, minute, 0, 0, time.UTC)
}

func (e *testEnv) guestRequest(scheduled time.Time) models.BookingRequest {
	return models.BookingRequest{
		ProfessionalID: e.pro.ID,
		ScheduledAt:    scheduled,
		ClientName:     "Maria Lopez",
		ClientEmail:    "Maria@Example.com ",
		ClientPhone:    "+34 600-111-222",
	}
}

func (e *testEnv) client(t *testing.T, email string) *domain.Session {
	t.Helper()
	ctx := context.Background()
	u, err := e.users.Register(ctx, RegisterRequest{Email: email, Name: "Client " + email, Password: "secret123"})
	require.NoError(t, err)
	sess, err := e.users.SessionFor(ctx, u)
	require.NoError(t, err)
	return sess
}
