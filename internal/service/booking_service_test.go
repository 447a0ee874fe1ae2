package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGuestBooking(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	r, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(14, 0)))
	require.NoError(t, err)

	assert.NotZero(t, r.ID)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.True(t, r.Guest)
	assert.Nil(t, r.ClientID)
	assert.Equal(t, "maria@example.com", r.ClientEmail)
	assert.Equal(t, "+34600111222", r.ClientPhone)

	slot, err := env.slots.SlotAt(ctx, env.pro.ID, env.at(14, 0), env.now)
	require.NoError(t, err)
	assert.Equal(t, models.SlotBooked, slot.Status)

	assert.Contains(t, env.eventTypes(), events.EventReservationCreated)

	tasks, err := env.db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	var payload models.NotificationPayload
	require.NoError(t, json.Unmarshal([]byte(tasks[0].Payload), &payload))
	assert.Equal(t, models.NotifyCreated, payload.Event)
	assert.Equal(t, r.ID, payload.Reservation.ID)
}

func TestCreateGuestBooking_Validation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.BookingRequest)
		want   error
	}{
		{"empty name", func(r *models.BookingRequest) { r.ClientName = "  " }, domain.ErrInvalidName},
		{"bad email", func(r *models.BookingRequest) { r.ClientEmail = "not-an-email" }, domain.ErrInvalidEmail},
		{"missing phone", func(r *models.BookingRequest) { r.ClientPhone = "" }, domain.ErrInvalidPhone},
		{"bad phone", func(r *models.BookingRequest) { r.ClientPhone = "call me" }, domain.ErrInvalidPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := env.guestRequest(env.at(14, 0))
			tt.mutate(&req)
			_, err := env.bookings.CreateGuestBooking(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	list, err := env.db.ListReservations(ctx, models.ReservationFilter{ProfessionalID: env.pro.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateGuestBooking_PhoneOptional(t *testing.T) {
	env := setupWithConfig(t, config.BookingConfig{GuestPhoneRequired: false})

	req := env.guestRequest(env.at(10, 0))
	req.ClientPhone = ""
	r, err := env.bookings.CreateGuestBooking(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, r.ClientPhone)
}

func TestCreateBooking_SlotRejections(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(14, 0)))
	require.NoError(t, err)
	_, err = env.slots.SetSlotStatus(ctx, env.proSess, env.pro.ID, env.at(15, 0), models.OverrideBusy, env.now)
	require.NoError(t, err)

	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{"already booked", env.at(14, 0), domain.ErrSlotUnavailable},
		{"override busy", env.at(15, 0), domain.ErrSlotUnavailable},
		{"past", env.at(14, 0).AddDate(0, 0, -1), domain.ErrPastSlot},
		{"off grid", env.at(14, 10), domain.ErrInvalidSlot},
		{"outside window", env.at(22, 0), domain.ErrInvalidSlot},
		{"too far", env.now.AddDate(0, 0, 91), domain.ErrDateTooFar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(tt.at))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateBooking_ProfessionalAndService(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	own := &models.Service{ProfessionalID: env.pro.ID, Name: "Haircut", Price: 30, DurationMinutes: 30}
	require.NoError(t, env.catalog.CreateService(ctx, env.admin, own))

	other := &models.Professional{Name: "Bea", WorkingHours: testHours, Timezone: "UTC"}
	require.NoError(t, env.catalog.CreateProfessional(ctx, env.admin, other))
	foreign := &models.Service{ProfessionalID: other.ID, Name: "Color", Price: 60, DurationMinutes: 60}
	require.NoError(t, env.catalog.CreateService(ctx, env.admin, foreign))

	req := env.guestRequest(env.at(10, 0))
	req.ServiceID = &foreign.ID
	_, err := env.bookings.CreateGuestBooking(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidService)

	missing := int64(999)
	req.ServiceID = &missing
	_, err = env.bookings.CreateGuestBooking(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidService)

	req.ServiceID = &own.ID
	r, err := env.bookings.CreateGuestBooking(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, r.ServiceID)
	assert.Equal(t, own.ID, *r.ServiceID)

	require.NoError(t, env.catalog.DeactivateService(ctx, env.proSess, own.ID))
	req = env.guestRequest(env.at(11, 0))
	req.ServiceID = &own.ID
	_, err = env.bookings.CreateGuestBooking(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidService)

	require.NoError(t, env.catalog.DeactivateProfessional(ctx, env.admin, env.pro.ID))
	_, err = env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(12, 0)))
	assert.ErrorIs(t, err, domain.ErrProfessionalInactive)

	req = env.guestRequest(env.at(12, 0))
	req.ProfessionalID = 12345
	_, err = env.bookings.CreateGuestBooking(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateBooking_RateLimited(t *testing.T) {
	env := setupWithConfig(t, config.BookingConfig{RateLimitCount: 2, RateLimitWindow: time.Hour})
	ctx := context.Background()

	_, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(10, 0)))
	require.NoError(t, err)
	_, err = env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(10, 30)))
	require.NoError(t, err)

	_, err = env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(11, 0)))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, domain.KindRateLimited, domain.Kind(err))

	// Другой email считается отдельно
	req := env.guestRequest(env.at(11, 0))
	req.ClientEmail = "someone@example.com"
	_, err = env.bookings.CreateGuestBooking(ctx, req)
	assert.NoError(t, err)
}

func TestCreateClientBooking(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.bookings.CreateClientBooking(ctx, nil, env.guestRequest(env.at(10, 0)))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	sess := env.client(t, "lucia@example.com")
	r, err := env.bookings.CreateClientBooking(ctx, sess, models.BookingRequest{
		ProfessionalID: env.pro.ID,
		ScheduledAt:    env.at(10, 0),
	})
	require.NoError(t, err)

	require.NotNil(t, r.ClientID)
	assert.Equal(t, sess.UserID, *r.ClientID)
	assert.False(t, r.Guest)
	assert.Equal(t, sess.Name, r.ClientName)
	assert.Equal(t, "lucia@example.com", r.ClientEmail)
	assert.Empty(t, r.ClientPhone)

	mine, err := env.bookings.ListForClient(ctx, sess)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, r.ID, mine[0].ID)
}

func TestBookingLifecycle(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	owner := env.client(t, "owner@example.com")
	stranger := env.client(t, "stranger@example.com")

	r, err := env.bookings.CreateClientBooking(ctx, owner, models.BookingRequest{ProfessionalID: env.pro.ID, ScheduledAt: env.at(16, 0)})
	require.NoError(t, err)

	_, err = env.bookings.ConfirmBooking(ctx, nil, r.ID, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = env.bookings.ConfirmBooking(ctx, owner, r.ID, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	otherPro := &domain.Session{UserID: 77, Role: models.RoleProfessional, ProfessionalID: env.pro.ID + 1}
	_, err = env.bookings.ConfirmBooking(ctx, otherPro, r.ID, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	confirmed, err := env.bookings.ConfirmBooking(ctx, env.proSess, r.ID, r.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, r.Version+1, confirmed.Version)

	_, err = env.bookings.DeclineBooking(ctx, env.proSess, r.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.bookings.CancelBooking(ctx, env.proSess, r.ID, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = env.bookings.CancelBooking(ctx, stranger, r.ID, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.bookings.CancelBooking(ctx, owner, r.ID, r.Version)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	cancelled, err := env.bookings.CancelBooking(ctx, owner, r.ID, confirmed.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = env.bookings.CompleteBooking(ctx, env.admin, r.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Слот снова свободен
	slot, err := env.slots.SlotAt(ctx, env.pro.ID, env.at(16, 0), env.now)
	require.NoError(t, err)
	assert.Equal(t, models.SlotAvailable, slot.Status)

	_, err = env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(16, 0)))
	assert.NoError(t, err)

	types := env.eventTypes()
	assert.Contains(t, types, events.EventReservationStatusChanged)
}

func TestBookingLifecycle_Complete(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	r, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(9, 0)))
	require.NoError(t, err)

	_, err = env.bookings.CompleteBooking(ctx, env.proSess, r.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.bookings.ConfirmBooking(ctx, env.admin, r.ID, 0)
	require.NoError(t, err)
	done, err := env.bookings.CompleteBooking(ctx, env.proSess, r.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.True(t, done.Status.IsTerminal())

	_, err = env.bookings.ConfirmBooking(ctx, env.proSess, 9999, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeclineFreesSlot(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	r, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(18, 30)))
	require.NoError(t, err)

	declined, err := env.bookings.DeclineBooking(ctx, env.proSess, r.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, declined.Status)

	again, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(18, 30)))
	require.NoError(t, err)
	assert.NotEqual(t, r.ID, again.ID)
}

func TestReservationQueries(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	owner := env.client(t, "owner@example.com")
	stranger := env.client(t, "stranger@example.com")

	r, err := env.bookings.CreateClientBooking(ctx, owner, models.BookingRequest{ProfessionalID: env.pro.ID, ScheduledAt: env.at(12, 0)})
	require.NoError(t, err)
	_, err = env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(13, 0)))
	require.NoError(t, err)

	got, err := env.bookings.GetReservation(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	_, err = env.bookings.GetReservation(ctx, env.proSess, r.ID)
	assert.NoError(t, err)
	_, err = env.bookings.GetReservation(ctx, stranger, r.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = env.bookings.GetReservation(ctx, nil, r.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	day := env.at(0, 0)
	list, err := env.bookings.ListForProfessional(ctx, env.proSess, env.pro.ID, day, day.AddDate(0, 0, 1), "")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = env.bookings.ListForProfessional(ctx, env.proSess, env.pro.ID, day, day, "expired")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = env.bookings.ListForProfessional(ctx, owner, env.pro.ID, day, day.AddDate(0, 0, 1), "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := env.bookings.ListAll(ctx, env.admin, models.ReservationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	_, err = env.bookings.ListAll(ctx, env.proSess, models.ReservationFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestExpiryJob(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	pending, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(10, 0)))
	require.NoError(t, err)
	answered, err := env.bookings.CreateGuestBooking(ctx, env.guestRequest(env.at(11, 0)))
	require.NoError(t, err)
	_, err = env.bookings.ConfirmBooking(ctx, env.proSess, answered.ID, 0)
	require.NoError(t, err)

	logger := env.bookings.logger
	disabled := NewExpiryJob(env.bookings, 0, 0, logger)
	assert.False(t, disabled.Enabled())
	n, err := disabled.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	job := NewExpiryJob(env.bookings, time.Hour, time.Minute, logger)
	n, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh requests are not expired")

	job.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.db.GetReservation(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, got.Status)
	got, err = env.db.GetReservation(ctx, answered.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
}
