package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuizAttempt is the durable per-question analytics row denormalized from
// embedded quizzes and from assessment moments found during extraction.
// Back-references are weak on purpose: deleting a space, conversation or
// message must not delete the attempt.
type QuizAttempt struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	SpaceID        *uuid.UUID     `gorm:"type:uuid;index" json:"space_id,omitempty"`
	ConversationID *uuid.UUID     `gorm:"type:uuid;index" json:"conversation_id,omitempty"`
	MessageID      *uuid.UUID     `gorm:"type:uuid;index" json:"message_id,omitempty"`
	Topic          string         `gorm:"column:topic;index" json:"topic"`
	QuestionText   string         `gorm:"column:question_text;not null" json:"question_text"`
	UserAnswer     string         `gorm:"column:user_answer" json:"user_answer"`
	IsCorrect      bool           `gorm:"column:is_correct;not null" json:"is_correct"`
	Attempts       int            `gorm:"column:attempts;not null;default:1" json:"attempts"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (QuizAttempt) TableName() string { return "quiz_attempt" }
