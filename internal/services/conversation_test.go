package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/types"
)

func TestEndConversationEnqueuesExtractionOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	require.NoError(t, env.convs.End(ctx, user.ID, conv.ID))
	// Ending again is a no-op, not an error.
	require.NoError(t, env.convs.End(ctx, user.ID, conv.ID))

	run, err := env.runRepo.GetByConversationID(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, run)
	require.Equal(t, types.ExtractionStatusQueued, run.Status)

	var runCount int64
	require.NoError(t, env.db.Model(&types.ExtractionRun{}).Where("conversation_id = ?", conv.ID).Count(&runCount).Error)
	require.Equal(t, int64(1), runCount)

	require.Equal(t, 1, countType(env.eventTypes(t, user.ID), types.EventSessionEnded))

	stored, err := env.convRepo.GetByID(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.False(t, stored.Active())
}

func TestEndRepairsMissingExtractionRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	// Simulate a close that flipped ended_at but died before the run row
	// was written.
	ended, err := env.convRepo.MarkEnded(ctx, nil, conv.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ended)
	run, err := env.runRepo.GetByConversationID(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.Nil(t, run)

	// A retried End on the already-ended conversation writes the run.
	require.NoError(t, env.convs.End(ctx, user.ID, conv.ID))
	run, err = env.runRepo.GetByConversationID(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, run)
	require.Equal(t, types.ExtractionStatusQueued, run.Status)

	// The retry repairs the queue without replaying the end itself.
	require.Zero(t, countType(env.eventTypes(t, user.ID), types.EventSessionEnded))
}

func TestEndConversationOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	stranger := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	require.ErrorIs(t, env.convs.End(ctx, stranger.ID, conv.ID), apperr.ErrNotFound)
}

func TestGetOrCreateActiveReusesOpenConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")

	first, err := env.convs.GetOrCreateActive(ctx, user.ID, space.ID)
	require.NoError(t, err)
	second, err := env.convs.GetOrCreateActive(ctx, user.ID, space.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	require.NoError(t, env.convs.End(ctx, user.ID, first.ID))
	third, err := env.convs.GetOrCreateActive(ctx, user.ID, space.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, third.ID)
}

func TestInactivitySweepEndsStaleConversations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	stale := env.startConversation(t, user.ID, space.ID)
	fresh := env.startConversation(t, user.ID, space.ID)

	// Backdate the stale conversation past the inactivity window.
	require.NoError(t, env.db.Model(&types.Conversation{}).
		Where("id = ?", stale.ID).
		Update("last_message_at", time.Now().Add(-DefaultInactivityTimeout-time.Minute)).Error)

	env.convs.(*conversationService).sweepOnce(ctx)

	ended, err := env.convRepo.GetByID(ctx, nil, stale.ID)
	require.NoError(t, err)
	require.False(t, ended.Active())

	still, err := env.convRepo.GetByID(ctx, nil, fresh.ID)
	require.NoError(t, err)
	require.True(t, still.Active())

	// The sweep enqueued extraction for the stale one only.
	run, err := env.runRepo.GetByConversationID(ctx, nil, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, run)
	none, err := env.runRepo.GetByConversationID(ctx, nil, fresh.ID)
	require.NoError(t, err)
	require.Nil(t, none)

	// Explicit close after the sweep stays a no-op.
	require.NoError(t, env.convs.End(ctx, user.ID, stale.ID))
	require.Equal(t, 1, countType(env.eventTypes(t, user.ID), types.EventSessionEnded))
}
