package database

import (
	"context"
	"testing"

	"salonbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := &models.User{Email: "client@example.com", Name: "Client", Phone: "+34600000001", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(ctx, user))
	assert.Equal(t, models.RoleClient, user.Role)

	assert.ErrorIs(t, db.CreateUser(ctx, &models.User{Email: "client@example.com", Name: "Other", PasswordHash: "h"}), ErrDuplicate)

	found, err := db.GetUserByEmail(ctx, "client@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "hash", found.PasswordHash)

	byID, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Client", byID.Name)

	require.NoError(t, db.UpdateUserRole(ctx, user.ID, models.RoleAdmin))
	byID, _ = db.GetUserByID(ctx, user.ID)
	assert.Equal(t, models.RoleAdmin, byID.Role)

	users, err := db.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	_, err = db.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdateUserRole(ctx, 999, models.RoleClient), ErrNotFound)
}
