package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/types"
)

// tutorQuizReply is a tutor turn embedding a two-question checkpoint quiz.
const tutorQuizReply = `Good progress. Let me see if this is solid.

<quiz>
<question id="1">
What is the derivative of x^2?
<options>
A. x
B. 2x
C. x^2
D. 2
</options>
<answer>B</answer>
</question>
<question id="2">
In one sentence, what does the chain rule let you differentiate?
<answer>a composition of functions</answer>
</question>
</quiz>

Take your time.`

func TestSendMessageStoresBothTurns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	env.ai.replies = []string{"A derivative measures instantaneous rate of change."}
	reply, hasQuiz, err := env.tutor.SendMessage(ctx, user.ID, conv.ID, "what is a derivative?")
	require.NoError(t, err)
	require.False(t, hasQuiz)
	require.Equal(t, types.RoleAssistant, reply.Role)
	require.Equal(t, "A derivative measures instantaneous rate of change.", reply.Content)

	msgs, err := env.msgRepo.GetAllOrdered(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, types.RoleUser, msgs[0].Role)
	require.Equal(t, int64(1), msgs[0].Seq)
	require.Equal(t, types.RoleAssistant, msgs[1].Role)
	require.Equal(t, int64(2), msgs[1].Seq)

	// First turn of the session emits session_started, later turns do not.
	_, _, err = env.tutor.SendMessage(ctx, user.ID, conv.ID, "go on")
	require.NoError(t, err)
	require.Equal(t, 1, countType(env.eventTypes(t, user.ID), types.EventSessionStarted))
}

func TestSendMessagePromptCarriesContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	_, _, err := env.tutor.SendMessage(ctx, user.ID, conv.ID, "hello there")
	require.NoError(t, err)

	require.Equal(t, 1, env.ai.callCount())
	call := env.ai.calls[0]
	require.Contains(t, call.System, "Topic: calculus")
	require.Contains(t, call.System, "hello there")
	require.Len(t, call.Turns, 1)
	require.Equal(t, types.RoleUser, call.Turns[0].Role)
}

func TestSendMessageQuizReplyStrippedAndRedacted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	env.ai.replies = []string{tutorQuizReply}
	reply, hasQuiz, err := env.tutor.SendMessage(ctx, user.ID, conv.ID, "quiz me")
	require.NoError(t, err)
	require.True(t, hasQuiz)

	// Stored content keeps the prose only.
	require.NotContains(t, reply.Content, "<quiz>")
	require.Contains(t, reply.Content, "Take your time.")

	// Returned payload has questions but no answer keys.
	payload, ok := reply.QuizPayload()
	require.True(t, ok)
	require.Len(t, payload.Questions, 2)
	require.Equal(t, types.QuizStatusPending, payload.Status)
	for _, q := range payload.Questions {
		require.Empty(t, q.CorrectAnswer)
	}

	// The stored row keeps the full key for grading.
	stored, err := env.msgRepo.GetByID(ctx, nil, reply.ID)
	require.NoError(t, err)
	storedPayload, ok := stored.QuizPayload()
	require.True(t, ok)
	require.Equal(t, "B", storedPayload.Questions[0].CorrectAnswer)
}

func TestSendMessageValidationAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	stranger := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	_, _, err := env.tutor.SendMessage(ctx, user.ID, conv.ID, "   ")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, _, err = env.tutor.SendMessage(ctx, stranger.ID, conv.ID, "hi")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSendMessageEndedConversationConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	require.NoError(t, env.convs.End(ctx, user.ID, conv.ID))

	_, _, err := env.tutor.SendMessage(ctx, user.ID, conv.ID, "still there?")
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSendMessageUpstreamFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	env.ai.err = apperr.ErrUpstreamUnavailable
	_, _, err := env.tutor.SendMessage(ctx, user.ID, conv.ID, "first try")
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	// The user turn survived the failed completion.
	msgs, err := env.msgRepo.GetAllOrdered(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "first try", msgs[0].Content)

	// Retrying appends a fresh turn rather than duplicating state.
	env.ai.err = nil
	env.ai.replies = []string{"Recovered."}
	reply, _, err := env.tutor.SendMessage(ctx, user.ID, conv.ID, "second try")
	require.NoError(t, err)
	require.Equal(t, "Recovered.", reply.Content)

	msgs, err = env.msgRepo.GetAllOrdered(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, int64(3), msgs[2].Seq)
}
