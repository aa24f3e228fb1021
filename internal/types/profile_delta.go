package types

import "time"

// TopicDelta is one topic's contribution from a single extracted session.
type TopicDelta struct {
	Comprehension *int      `json:"comprehension,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	QuizScores    []float64 `json:"quiz_scores,omitempty"`
	Quizzed       bool      `json:"quizzed"`
	SeenAt        time.Time `json:"seen_at"`
}

// ProfileDelta is the structured output of one extraction run. It is merged
// into the learner profile field by field: the topic map key by key, lists
// by append, so concurrent deltas from unrelated sessions never clobber
// each other.
type ProfileDelta struct {
	Summary       SessionSummary        `json:"summary"`
	Topics        map[string]TopicDelta `json:"topics"`
	Observations  []string              `json:"observations"`
	OpenQuestions []string              `json:"open_questions"`
	CurrentTopic  string                `json:"current_topic"`
	LastSessionAt time.Time             `json:"last_session_at"`
}
