package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/quiz"
	"github.com/lumalearn/luma-backend/internal/types"
)

// sendQuizTurn drives one tutor turn whose reply embeds the two-question
// quiz and returns the stored assistant message.
func sendQuizTurn(t *testing.T, env *testEnv, userID, convID uuid.UUID) *types.Message {
	t.Helper()
	env.ai.replies = []string{tutorQuizReply}
	reply, hasQuiz, err := env.tutor.SendMessage(context.Background(), userID, convID, "quiz me")
	require.NoError(t, err)
	require.True(t, hasQuiz)
	return reply
}

func TestSubmitResponsesGradesAndCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)
	quizMsg := sendQuizTurn(t, env, user.ID, conv.ID)

	graded, err := env.quizzes.SubmitResponses(ctx, user.ID, quizMsg.ID, []quiz.Answer{
		{QuestionID: "q1", UserAnswer: "B"},
		{QuestionID: "q2", UserAnswer: "no idea"},
	})
	require.NoError(t, err)

	payload, ok := graded.QuizPayload()
	require.True(t, ok)
	require.True(t, payload.Completed())
	require.NotNil(t, payload.CompletedAt)
	correct, total := payload.CorrectCount()
	require.Equal(t, 1, correct)
	require.Equal(t, 2, total)
	// Redacted even after grading.
	for _, q := range payload.Questions {
		require.Empty(t, q.CorrectAnswer)
	}

	attempts, err := env.attemptRepo.GetByConversationID(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	for _, a := range attempts {
		require.Equal(t, "calculus", a.Topic)
		require.Equal(t, user.ID, a.UserID)
		require.NotNil(t, a.MessageID)
	}

	require.Equal(t, 1, countType(env.eventTypes(t, user.ID), types.EventQuizAttempted))
}

func TestSubmitResponsesPartialNeverTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)
	quizMsg := sendQuizTurn(t, env, user.ID, conv.ID)

	_, err := env.quizzes.SubmitResponses(ctx, user.ID, quizMsg.ID, []quiz.Answer{
		{QuestionID: "q1", UserAnswer: "B"},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	// Still pending, no attempts written, no event emitted.
	stored, err := env.msgRepo.GetByID(ctx, nil, quizMsg.ID)
	require.NoError(t, err)
	payload, ok := stored.QuizPayload()
	require.True(t, ok)
	require.Equal(t, types.QuizStatusPending, payload.Status)

	attempts, err := env.attemptRepo.GetByConversationID(ctx, nil, conv.ID)
	require.NoError(t, err)
	require.Empty(t, attempts)
	require.Zero(t, countType(env.eventTypes(t, user.ID), types.EventQuizAttempted))
}

func TestSubmitResponsesSecondSubmissionConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)
	quizMsg := sendQuizTurn(t, env, user.ID, conv.ID)

	first := []quiz.Answer{
		{QuestionID: "q1", UserAnswer: "B"},
		{QuestionID: "q2", UserAnswer: "a composition of functions"},
	}
	_, err := env.quizzes.SubmitResponses(ctx, user.ID, quizMsg.ID, first)
	require.NoError(t, err)

	_, err = env.quizzes.SubmitResponses(ctx, user.ID, quizMsg.ID, []quiz.Answer{
		{QuestionID: "q1", UserAnswer: "A"},
		{QuestionID: "q2", UserAnswer: "different"},
	})
	require.ErrorIs(t, err, apperr.ErrConflict)

	// The first graded set is preserved.
	stored, err := env.msgRepo.GetByID(ctx, nil, quizMsg.ID)
	require.NoError(t, err)
	payload, _ := stored.QuizPayload()
	correct, total := payload.CorrectCount()
	require.Equal(t, 2, correct)
	require.Equal(t, 2, total)
}

func TestSubmitResponsesWithoutQuizConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)

	env.ai.replies = []string{"Just prose, no quiz."}
	reply, hasQuiz, err := env.tutor.SendMessage(ctx, user.ID, conv.ID, "hello")
	require.NoError(t, err)
	require.False(t, hasQuiz)

	_, err = env.quizzes.SubmitResponses(ctx, user.ID, reply.ID, []quiz.Answer{
		{QuestionID: "q1", UserAnswer: "B"},
	})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSubmitResponsesOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	stranger := env.createUser(t)
	space := env.createSpace(t, user.ID, "calculus")
	conv := env.startConversation(t, user.ID, space.ID)
	quizMsg := sendQuizTurn(t, env, user.ID, conv.ID)

	_, err := env.quizzes.SubmitResponses(ctx, stranger.ID, quizMsg.ID, []quiz.Answer{
		{QuestionID: "q1", UserAnswer: "B"},
		{QuestionID: "q2", UserAnswer: "x"},
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
