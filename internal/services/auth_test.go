package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/requestdata"
)

func newAuthService(env *testEnv) AuthService {
	return NewAuthService(env.db, env.log, env.userRepo, env.profileRepo, "test-secret", time.Hour)
}

func TestRegisterCreatesUserAndProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := newAuthService(env)

	user, token, err := auth.Register(ctx, "Learner@Example.com", "hunter22", "Sam")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "learner@example.com", user.Email)
	require.NotEqual(t, "hunter22", user.Password)

	profile, err := env.profileRepo.GetByUserID(ctx, nil, user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, "Sam", profile.DisplayName)

	_, _, err = auth.Register(ctx, "learner@example.com", "other", "Dup")
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestLoginAndTokenRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := newAuthService(env)

	user, _, err := auth.Register(ctx, "learner@example.com", "hunter22", "Sam")
	require.NoError(t, err)

	_, token, err := auth.Login(ctx, "learner@example.com", "hunter22")
	require.NoError(t, err)

	authedCtx, err := auth.SetContextFromToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, requestdata.UserID(authedCtx))

	_, _, err = auth.Login(ctx, "learner@example.com", "wrong")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = auth.SetContextFromToken(ctx, "not-a-token")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRefreshIssuesTokenForAuthenticatedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := newAuthService(env)

	user, _, err := auth.Register(ctx, "learner@example.com", "hunter22", "Sam")
	require.NoError(t, err)

	_, token, err := auth.Login(ctx, "learner@example.com", "hunter22")
	require.NoError(t, err)
	authedCtx, err := auth.SetContextFromToken(ctx, token)
	require.NoError(t, err)

	refreshed, newToken, err := auth.Refresh(authedCtx)
	require.NoError(t, err)
	require.Equal(t, user.ID, refreshed.ID)
	require.NotEmpty(t, newToken)

	roundTrip, err := auth.SetContextFromToken(ctx, newToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, requestdata.UserID(roundTrip))

	_, _, err = auth.Refresh(ctx)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}
