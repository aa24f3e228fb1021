package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event types emitted by the engine. Payload shapes live with the emitters.
const (
	EventSessionStarted       = "session_started"
	EventSessionEnded         = "session_ended"
	EventTopicIntroduced      = "topic_introduced"
	EventTopicRevisited       = "topic_revisited"
	EventQuizAttempted        = "quiz_attempted"
	EventComprehensionUpdated = "comprehension_updated"
	EventFrustrationDetected  = "frustration_detected"
	EventStruggleDetected     = "struggle_detected"
	EventBreakthroughMoment   = "breakthrough_moment"
	EventPracticeRequested    = "practice_requested"
	EventBackgroundJobStarted   = "background_job_started"
	EventBackgroundJobCompleted = "background_job_completed"
	EventBackgroundJobFailed    = "background_job_failed"
)

// LearningEvent is the append-only behavioral record consumed by external
// analytics. Never mutated or deleted by the engine; space/conversation
// references are weak so events outlive their parents.
type LearningEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	SpaceID        *uuid.UUID     `gorm:"type:uuid;index" json:"space_id,omitempty"`
	ConversationID *uuid.UUID     `gorm:"type:uuid;index" json:"conversation_id,omitempty"`
	Type           string         `gorm:"column:type;not null;index" json:"type"`
	Data           datatypes.JSON `gorm:"type:jsonb;column:data" json:"data"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
}

func (LearningEvent) TableName() string { return "learning_event" }
