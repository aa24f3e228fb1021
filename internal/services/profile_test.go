package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumalearn/luma-backend/internal/types"
)

func strp(s string) *string { return &s }

func TestProfileUpdateTouchesOnlyUserFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)

	// Seed extraction-owned state.
	profile, err := env.profileRepo.GetOrCreateByUserID(ctx, nil, user.ID)
	require.NoError(t, err)
	profile.SetTopicMap(map[string]types.TopicState{
		"chain rule": {FirstSeen: time.Now(), LastSeen: time.Now(), SessionsCount: 1},
	})
	require.NoError(t, env.profileRepo.SaveLearningState(ctx, nil, profile))

	updated, err := env.profiles.Update(ctx, user.ID, ProfileUpdateInput{
		DisplayName: strp("Sam"),
		Goals:       strp("  pass the midterm  "),
		Preferences: map[string]any{"pace": "slow"},
	})
	require.NoError(t, err)
	require.Equal(t, "Sam", updated.DisplayName)
	require.Equal(t, "pass the midterm", updated.Goals)
	require.Contains(t, string(updated.Preferences), "slow")

	// Learning state untouched by the user edit.
	require.Equal(t, 1, updated.TopicMap()["chain rule"].SessionsCount)
}

func TestProfileGetCreatesLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)

	profile, err := env.profiles.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, profile.UserID)
	require.Empty(t, profile.TopicMap())

	again, err := env.profiles.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, profile.ID, again.ID)
}

func TestProfileUpdateNoFieldsIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)

	profile, err := env.profiles.Update(ctx, user.ID, ProfileUpdateInput{})
	require.NoError(t, err)
	require.Equal(t, user.ID, profile.UserID)
}
