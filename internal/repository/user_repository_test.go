package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

func TestMemoryUserRepository(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, " pilot ", "hunter2", nil)
	require.NoError(t, err)
	assert.Equal(t, "pilot", user.Username)
	assert.NotEqual(t, "hunter2", user.PasswordHash)
	assert.ElementsMatch(t, models.DefaultAuthorities, user.Authorities)

	_, err = repo.CreateUser(ctx, "pilot", "other", nil)
	assert.ErrorIs(t, err, ErrUsernameTaken)

	got, err := repo.AuthenticateUser(ctx, "pilot", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = repo.AuthenticateUser(ctx, "pilot", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = repo.AuthenticateUser(ctx, "nobody", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, repo.SetActive(user.ID, false))
	_, err = repo.AuthenticateUser(ctx, "pilot", "hunter2")
	assert.ErrorIs(t, err, ErrUserInactive)

	_, err = repo.GetUserByID(ctx, 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryUserRepository_RejectsInvalidAuthorities(t *testing.T) {
	_, err := NewMemoryUserRepository().CreateUser(context.Background(), "a", "b", []models.Authority{"ADMIN"})
	assert.Error(t, err)
}
