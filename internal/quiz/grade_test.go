package quiz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/types"
)

func pendingQuiz() *types.QuizPayload {
	p, ok := Parse(sampleQuizReply)
	if !ok {
		panic("sample quiz did not parse")
	}
	return p
}

func TestCompleteGradesEveryQuestion(t *testing.T) {
	p := pendingQuiz()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	err := Complete(p, []Answer{
		{QuestionID: "q1", UserAnswer: "  a "},
		{QuestionID: "q2", UserAnswer: "wrong idea entirely"},
	}, now)
	require.NoError(t, err)

	require.Equal(t, types.QuizStatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	require.Equal(t, now, *p.CompletedAt)
	require.Len(t, p.Responses, 2)

	require.True(t, p.Responses[0].IsCorrect, "trimmed case-insensitive match should grade correct")
	require.False(t, p.Responses[1].IsCorrect)
	require.Contains(t, p.Responses[1].Feedback, "correct answer")

	correct, total := p.CorrectCount()
	require.Equal(t, 1, correct)
	require.Equal(t, 2, total)
}

func TestCompleteAcceptsFullOptionLine(t *testing.T) {
	p := pendingQuiz()
	err := Complete(p, []Answer{
		{QuestionID: "q1", UserAnswer: "A. cos(x)"},
		{QuestionID: "q2", UserAnswer: "no"},
	}, time.Now())
	require.NoError(t, err)
	require.True(t, p.Responses[0].IsCorrect)
}

func TestPartialSubmissionNeverTransitions(t *testing.T) {
	cases := []struct {
		name    string
		answers []Answer
	}{
		{name: "too_few", answers: []Answer{{QuestionID: "q1", UserAnswer: "A"}}},
		{name: "none", answers: nil},
		{name: "duplicate_question", answers: []Answer{
			{QuestionID: "q1", UserAnswer: "A"},
			{QuestionID: "q1", UserAnswer: "B"},
		}},
		{name: "unknown_question", answers: []Answer{
			{QuestionID: "q1", UserAnswer: "A"},
			{QuestionID: "q99", UserAnswer: "B"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := pendingQuiz()
			err := Complete(p, tc.answers, time.Now())
			require.ErrorIs(t, err, apperr.ErrValidation)
			require.Equal(t, types.QuizStatusPending, p.Status)
			require.Empty(t, p.Responses)
			require.Nil(t, p.CompletedAt)
		})
	}
}

func TestSecondCompletionIsConflict(t *testing.T) {
	p := pendingQuiz()
	answers := []Answer{
		{QuestionID: "q1", UserAnswer: "A"},
		{QuestionID: "q2", UserAnswer: "scaling"},
	}
	require.NoError(t, Complete(p, answers, time.Now()))
	stored := append([]types.QuizResponse(nil), p.Responses...)

	err := Complete(p, []Answer{
		{QuestionID: "q1", UserAnswer: "B"},
		{QuestionID: "q2", UserAnswer: "different"},
	}, time.Now())
	require.ErrorIs(t, err, apperr.ErrConflict)
	require.Equal(t, stored, p.Responses, "stored responses must not change on conflict")
}
