package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/types"
)

type ConversationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error)
	GetBySpaceID(ctx context.Context, tx *gorm.DB, spaceID uuid.UUID) ([]*types.Conversation, error)
	TouchLastMessage(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkEnded(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error)
	MarkExtracted(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time, summary string) error
	GetStaleActive(ctx context.Context, tx *gorm.DB, inactiveSince time.Time, limit int) ([]*types.Conversation, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: baseLog.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var conv types.Conversation
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) GetBySpaceID(ctx context.Context, tx *gorm.DB, spaceID uuid.UUID) ([]*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Conversation
	if spaceID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("last_message_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conversationRepo) TouchLastMessage(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"last_message_at": at, "updated_at": at}).Error
}

// MarkEnded flips an active conversation to ended. Returns false when the
// conversation was already ended, so session_ended fires at most once.
func (r *conversationRepo) MarkEnded(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]interface{}{"ended_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *conversationRepo) MarkExtracted(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time, summary string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"extracted_at": at, "summary": summary, "updated_at": at}).Error
}

func (r *conversationRepo) GetStaleActive(ctx context.Context, tx *gorm.DB, inactiveSince time.Time, limit int) ([]*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Conversation
	q := transaction.WithContext(ctx).
		Where("ended_at IS NULL AND last_message_at < ?", inactiveSince).
		Order("last_message_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
