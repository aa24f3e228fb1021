package quiz

import (
	"fmt"
	"strings"
	"time"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/types"
)

// Answer is one submitted response, pre-grading.
type Answer struct {
	QuestionID string `json:"question_id"`
	UserAnswer string `json:"user_answer"`
}

// Complete drives the PENDING -> COMPLETED transition. It requires exactly
// one answer per outstanding question: partial submissions are rejected
// with no transition, and a submission against an already-completed quiz
// is rejected as a conflict, never silently reapplied. On success the
// payload holds one graded response per question and a completion time.
func Complete(p *types.QuizPayload, answers []Answer, now time.Time) error {
	if p == nil || len(p.Questions) == 0 {
		return fmt.Errorf("%w: message has no quiz", apperr.ErrNotFound)
	}
	if p.Completed() {
		return fmt.Errorf("%w: quiz already completed", apperr.ErrConflict)
	}

	byQuestion := make(map[string]Answer, len(answers))
	for _, a := range answers {
		if _, dup := byQuestion[a.QuestionID]; dup {
			return fmt.Errorf("%w: duplicate answer for question %s", apperr.ErrValidation, a.QuestionID)
		}
		byQuestion[a.QuestionID] = a
	}
	if len(byQuestion) != len(p.Questions) {
		return fmt.Errorf("%w: expected %d answers, got %d", apperr.ErrValidation, len(p.Questions), len(byQuestion))
	}

	responses := make([]types.QuizResponse, 0, len(p.Questions))
	for _, q := range p.Questions {
		a, ok := byQuestion[q.ID]
		if !ok {
			return fmt.Errorf("%w: missing answer for question %s", apperr.ErrValidation, q.ID)
		}
		responses = append(responses, grade(q, a))
	}

	p.Responses = responses
	p.Status = types.QuizStatusCompleted
	completedAt := now.UTC()
	p.CompletedAt = &completedAt
	return nil
}

// grade checks an answer by exact match against the recorded marker,
// case-insensitive and trimmed. An MCQ answer also matches when the user
// submits the full option line whose letter is the marker ("B. Second
// option" for marker "B").
func grade(q types.QuizQuestion, a Answer) types.QuizResponse {
	user := normalizeAnswer(a.UserAnswer)
	want := normalizeAnswer(q.CorrectAnswer)

	correct := user != "" && user == want
	if !correct && q.Type == types.QuestionTypeMCQ && want != "" {
		correct = strings.HasPrefix(user, want+".") || strings.HasPrefix(user, want+")")
	}

	feedback := "Correct"
	if !correct {
		feedback = fmt.Sprintf("The correct answer was %s", q.CorrectAnswer)
	}
	return types.QuizResponse{
		QuestionID: q.ID,
		UserAnswer: a.UserAnswer,
		IsCorrect:  correct,
		Feedback:   feedback,
	}
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
