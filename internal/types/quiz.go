package types

import "time"

const (
	PayloadTypeQuiz = "quiz"

	QuizStatusPending   = "pending"
	QuizStatusCompleted = "completed"

	QuestionTypeMCQ           = "mcq"
	QuestionTypeShortResponse = "short_response"
)

// QuizQuestion is one question of an embedded checkpoint quiz. The
// CorrectAnswer marker is stored server-side only and must never be
// echoed to the client rendering.
type QuizQuestion struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

// QuizResponse is one graded answer recorded at completion time.
type QuizResponse struct {
	QuestionID string `json:"question_id"`
	UserAnswer string `json:"user_answer"`
	IsCorrect  bool   `json:"is_correct"`
	Feedback   string `json:"feedback,omitempty"`
}

// QuizPayload is the typed quiz embedded in an assistant message's
// metadata bag. It transitions pending -> completed exactly once, only
// when every question has a recorded response, and never regresses.
type QuizPayload struct {
	Type        string         `json:"type"`
	Questions   []QuizQuestion `json:"questions"`
	Status      string         `json:"status"`
	Responses   []QuizResponse `json:"responses"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (p *QuizPayload) Completed() bool { return p.Status == QuizStatusCompleted }

// CorrectCount reports graded results as (correct, total questions).
func (p *QuizPayload) CorrectCount() (int, int) {
	correct := 0
	for _, r := range p.Responses {
		if r.IsCorrect {
			correct++
		}
	}
	return correct, len(p.Questions)
}

// Redacted returns a client-safe copy with answer keys stripped.
func (p *QuizPayload) Redacted() *QuizPayload {
	out := *p
	out.Questions = make([]QuizQuestion, len(p.Questions))
	for i, q := range p.Questions {
		q.CorrectAnswer = ""
		out.Questions[i] = q
	}
	return &out
}
