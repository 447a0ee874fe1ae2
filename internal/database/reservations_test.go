package database

import (
	"context"
	"testing"

	"salonbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReservation(professionalID int64, day, hour, minute int) *models.Reservation {
	return &models.Reservation{
		ClientName:     "Guest",
		ClientEmail:    "guest@example.com",
		ClientPhone:    "+34600000000",
		Guest:          true,
		ProfessionalID: professionalID,
		ScheduledAt:    slot(day, hour, minute),
	}
}

func TestCreateAndGetReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	pro := createTestProfessional(t, db, "Anna")

	r := newReservation(pro.ID, 10, 10, 0)
	r.Notes = "first visit"
	require.NoError(t, db.CreateReservation(ctx, r))
	assert.NotZero(t, r.ID)
	assert.Equal(t, int64(1), r.Version)
	assert.Equal(t, models.StatusPending, r.Status)

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.ScheduledAt.Equal(slot(10, 10, 0)))
	assert.Equal(t, "first visit", got.Notes)
	assert.True(t, got.Guest)
	assert.Nil(t, got.ClientID)
	assert.Nil(t, got.ServiceID)

	_, err = db.GetReservation(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateReservation_ActiveSlotUnique(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	pro := createTestProfessional(t, db, "Anna")
	other := createTestProfessional(t, db, "Bea")

	first := newReservation(pro.ID, 10, 10, 0)
	require.NoError(t, db.CreateReservation(ctx, first))

	err := db.CreateReservation(ctx, newReservation(pro.ID, 10, 10, 0))
	assert.ErrorIs(t, err, ErrSlotTaken)

	// Другой мастер, то же время
	require.NoError(t, db.CreateReservation(ctx, newReservation(other.ID, 10, 10, 0)))

	// После отмены слот снова свободен
	require.NoError(t, db.UpdateReservationStatusWithVersion(ctx, first.ID, first.Version, models.StatusDeclined))
	require.NoError(t, db.CreateReservation(ctx, newReservation(pro.ID, 10, 10, 0)))
}

func TestOptimisticLocking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	pro := createTestProfessional(t, db, "Anna")

	r := newReservation(pro.ID, 11, 9, 30)
	require.NoError(t, db.CreateReservation(ctx, r))

	require.NoError(t, db.UpdateReservationStatusWithVersion(ctx, r.ID, r.Version, models.StatusConfirmed))

	err := db.UpdateReservationStatusWithVersion(ctx, r.ID, r.Version, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	updated, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, models.StatusConfirmed, updated.Status)

	require.NoError(t, db.UpdateReservationStatusWithVersion(ctx, updated.ID, updated.Version, models.StatusCompleted))
}

func TestListReservations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	pro := createTestProfessional(t, db, "Anna")
	other := createTestProfessional(t, db, "Bea")

	user := &models.User{Email: "c@example.com", Name: "Client", PasswordHash: "x"}
	require.NoError(t, db.CreateUser(ctx, user))

	owned := newReservation(pro.ID, 12, 11, 0)
	owned.ClientID = &user.ID
	owned.Guest = false
	require.NoError(t, db.CreateReservation(ctx, owned))
	require.NoError(t, db.CreateReservation(ctx, newReservation(pro.ID, 12, 9, 0)))
	require.NoError(t, db.CreateReservation(ctx, newReservation(other.ID, 13, 9, 0)))

	t.Run("ByProfessional", func(t *testing.T) {
		list, err := db.ListReservations(ctx, models.ReservationFilter{ProfessionalID: pro.ID})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.True(t, list[0].ScheduledAt.Before(list[1].ScheduledAt))
	})

	t.Run("ByClient", func(t *testing.T) {
		list, err := db.ListReservations(ctx, models.ReservationFilter{ClientID: user.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, owned.ID, list[0].ID)
	})

	t.Run("ByRangeAndStatus", func(t *testing.T) {
		list, err := db.ListReservations(ctx, models.ReservationFilter{
			From:   slot(13, 0, 0),
			To:     slot(14, 0, 0),
			Status: models.StatusPending,
		})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, other.ID, list[0].ProfessionalID)
	})
}

func TestGetActiveReservationsInRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	pro := createTestProfessional(t, db, "Anna")

	active := newReservation(pro.ID, 15, 10, 0)
	require.NoError(t, db.CreateReservation(ctx, active))
	declined := newReservation(pro.ID, 15, 11, 0)
	require.NoError(t, db.CreateReservation(ctx, declined))
	require.NoError(t, db.UpdateReservationStatusWithVersion(ctx, declined.ID, 1, models.StatusDeclined))
	confirmed := newReservation(pro.ID, 15, 12, 0)
	require.NoError(t, db.CreateReservation(ctx, confirmed))
	require.NoError(t, db.UpdateReservationStatusWithVersion(ctx, confirmed.ID, 1, models.StatusConfirmed))
	require.NoError(t, db.CreateReservation(ctx, newReservation(pro.ID, 16, 10, 0)))

	list, err := db.GetActiveReservationsInRange(ctx, pro.ID, slot(15, 0, 0), slot(16, 0, 0))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, active.ID, list[0].ID)
	assert.Equal(t, confirmed.ID, list[1].ID)
	assert.Equal(t, models.StatusConfirmed, list[1].Status)
}

func TestGetPendingCreatedBefore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	pro := createTestProfessional(t, db, "Anna")

	r := newReservation(pro.ID, 17, 10, 0)
	require.NoError(t, db.CreateReservation(ctx, r))

	list, err := db.GetPendingCreatedBefore(ctx, r.CreatedAt.Add(-1))
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = db.GetPendingCreatedBefore(ctx, r.CreatedAt.Add(1e9))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].ID)
}
