package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a conversation. Append-only: content and role are
// never mutated after creation. Only the metadata bag may change state once,
// when an embedded quiz is completed. Total order within a conversation is
// Seq, assigned at insert time.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index:idx_message_conv_seq" json:"conversation_id"`
	Conversation   *Conversation  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConversationID;references:ID" json:"conversation,omitempty"`
	Seq            int64          `gorm:"column:seq;not null;index:idx_message_conv_seq" json:"seq"`
	Role           string         `gorm:"column:role;not null" json:"role"`
	Content        string         `gorm:"column:content;not null" json:"content"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Message) TableName() string { return "message" }

// QuizPayload decodes the embedded quiz from the metadata bag, if any.
// The payload is parsed once at persistence time; reads only decode it.
func (m *Message) QuizPayload() (*QuizPayload, bool) {
	if len(m.Metadata) == 0 {
		return nil, false
	}
	var p QuizPayload
	if err := json.Unmarshal(m.Metadata, &p); err != nil {
		return nil, false
	}
	if p.Type != PayloadTypeQuiz || len(p.Questions) == 0 {
		return nil, false
	}
	return &p, true
}

// SetQuizPayload encodes the quiz into the metadata bag.
func (m *Message) SetQuizPayload(p *QuizPayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	m.Metadata = datatypes.JSON(raw)
	return nil
}
