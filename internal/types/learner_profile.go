package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxRecentSessions bounds the denormalized recent-session window kept on
// the profile. Older summaries are evicted; the event log is the audit trail.
const MaxRecentSessions = 3

// Moods classified for a session summary. Closed set.
const (
	MoodEngaged    = "engaged"
	MoodFrustrated = "frustrated"
	MoodConfused   = "confused"
	MoodConfident  = "confident"
	MoodNeutral    = "neutral"
)

// TopicState is the per-topic learning signal aggregate nested under a
// profile's topic map, keyed by normalized topic name.
type TopicState struct {
	FirstSeen     time.Time  `json:"first_seen"`
	LastSeen      time.Time  `json:"last_seen"`
	SessionsCount int        `json:"sessions_count"`
	Comprehension *int       `json:"comprehension,omitempty"` // 1-5 when evidenced
	QuizScores    []float64  `json:"quiz_scores,omitempty"`
	LastQuizzedAt *time.Time `json:"last_quizzed_at,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// SessionSummary is one entry of the bounded recent-sessions window.
type SessionSummary struct {
	ConversationID  uuid.UUID `json:"conversation_id"`
	Date            time.Time `json:"date"`
	DurationMinutes int       `json:"duration_minutes"`
	Synopsis        string    `json:"synopsis"`
	TopicsDiscussed []string  `json:"topics_discussed"`
	Mood            string    `json:"mood"`
}

// LearnerProfile is the one-per-user durable learning state. Goals,
// background and preferences are user-edited; the topic map, observations,
// open questions and recent sessions are mutated only by extraction.
type LearnerProfile struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User          *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	DisplayName   string         `gorm:"column:display_name" json:"display_name"`
	Goals         string         `gorm:"column:goals" json:"goals"`
	Background    string         `gorm:"column:background" json:"background"`
	Preferences   datatypes.JSON `gorm:"type:jsonb;column:preferences" json:"preferences"`
	Topics        datatypes.JSON `gorm:"type:jsonb;column:topics" json:"topics"`
	Observations  datatypes.JSON `gorm:"type:jsonb;column:observations" json:"observations"`
	CurrentTopic  string         `gorm:"column:current_topic" json:"current_topic"`
	OpenQuestions datatypes.JSON `gorm:"type:jsonb;column:open_questions" json:"open_questions"`
	RecentSessions datatypes.JSON `gorm:"type:jsonb;column:recent_sessions" json:"recent_sessions"`
	LastSessionAt *time.Time     `gorm:"column:last_session_at" json:"last_session_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearnerProfile) TableName() string { return "learner_profile" }

// NewEmptyProfile synthesizes an in-memory profile for users with no stored
// one yet, so first-session behavior degrades gracefully.
func NewEmptyProfile(userID uuid.UUID) *LearnerProfile {
	return &LearnerProfile{ID: uuid.New(), UserID: userID}
}

func (p *LearnerProfile) TopicMap() map[string]TopicState {
	out := map[string]TopicState{}
	if len(p.Topics) > 0 {
		_ = json.Unmarshal(p.Topics, &out)
	}
	return out
}

func (p *LearnerProfile) SetTopicMap(m map[string]TopicState) {
	raw, _ := json.Marshal(m)
	p.Topics = datatypes.JSON(raw)
}

func (p *LearnerProfile) ObservationList() []string {
	var out []string
	if len(p.Observations) > 0 {
		_ = json.Unmarshal(p.Observations, &out)
	}
	return out
}

func (p *LearnerProfile) SetObservationList(obs []string) {
	raw, _ := json.Marshal(obs)
	p.Observations = datatypes.JSON(raw)
}

func (p *LearnerProfile) OpenQuestionList() []string {
	var out []string
	if len(p.OpenQuestions) > 0 {
		_ = json.Unmarshal(p.OpenQuestions, &out)
	}
	return out
}

func (p *LearnerProfile) SetOpenQuestionList(qs []string) {
	raw, _ := json.Marshal(qs)
	p.OpenQuestions = datatypes.JSON(raw)
}

func (p *LearnerProfile) RecentSessionList() []SessionSummary {
	var out []SessionSummary
	if len(p.RecentSessions) > 0 {
		_ = json.Unmarshal(p.RecentSessions, &out)
	}
	return out
}

func (p *LearnerProfile) SetRecentSessionList(s []SessionSummary) {
	raw, _ := json.Marshal(s)
	p.RecentSessions = datatypes.JSON(raw)
}
