package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Conversation is one bounded tutoring session inside a space.
// Lifecycle: active (EndedAt nil) -> ended -> extracted exactly once.
type Conversation struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SpaceID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"space_id"`
	Space         *LearningSpace `gorm:"constraint:OnDelete:CASCADE;foreignKey:SpaceID;references:ID" json:"space,omitempty"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	StartedAt     time.Time      `gorm:"column:started_at;not null" json:"started_at"`
	LastMessageAt time.Time      `gorm:"column:last_message_at;not null" json:"last_message_at"`
	EndedAt       *time.Time     `gorm:"column:ended_at" json:"ended_at,omitempty"`
	ExtractedAt   *time.Time     `gorm:"column:extracted_at" json:"extracted_at,omitempty"`
	Summary       string         `gorm:"column:summary" json:"summary"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Conversation) TableName() string { return "conversation" }

func (c *Conversation) Active() bool { return c.EndedAt == nil }
