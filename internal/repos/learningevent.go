package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/types"
)

// LearningEventRepo is append-only by design: no update or delete surface.
type LearningEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, events []*types.LearningEvent) ([]*types.LearningEvent, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.LearningEvent, error)
	GetByConversationID(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.LearningEvent, error)
	GetByUserAndType(ctx context.Context, tx *gorm.DB, userID uuid.UUID, eventType string) ([]*types.LearningEvent, error)
}

type learningEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearningEventRepo(db *gorm.DB, baseLog *logger.Logger) LearningEventRepo {
	return &learningEventRepo{db: db, log: baseLog.With("repo", "LearningEventRepo")}
}

func (r *learningEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.LearningEvent) ([]*types.LearningEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.LearningEvent{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *learningEventRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.LearningEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LearningEvent
	if userID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *learningEventRepo) GetByConversationID(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.LearningEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LearningEvent
	if conversationID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *learningEventRepo) GetByUserAndType(ctx context.Context, tx *gorm.DB, userID uuid.UUID, eventType string) ([]*types.LearningEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LearningEvent
	if userID == uuid.Nil || eventType == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, eventType).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
