package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/types"
)

type SpaceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, space *types.LearningSpace) (*types.LearningSpace, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.LearningSpace, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LearningSpace, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type spaceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSpaceRepo(db *gorm.DB, baseLog *logger.Logger) SpaceRepo {
	return &spaceRepo{db: db, log: baseLog.With("repo", "SpaceRepo")}
}

func (r *spaceRepo) Create(ctx context.Context, tx *gorm.DB, space *types.LearningSpace) (*types.LearningSpace, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(space).Error; err != nil {
		return nil, err
	}
	return space, nil
}

func (r *spaceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.LearningSpace, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var space types.LearningSpace
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&space).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &space, nil
}

func (r *spaceRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LearningSpace, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LearningSpace
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Delete cascades through conversations and messages; quiz attempts and
// learning events hold weak references and survive.
func (r *spaceRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var convIDs []uuid.UUID
		if err := txx.Model(&types.Conversation{}).
			Where("space_id = ?", id).
			Pluck("id", &convIDs).Error; err != nil {
			return err
		}
		if len(convIDs) > 0 {
			if err := txx.Where("conversation_id IN ?", convIDs).Delete(&types.Message{}).Error; err != nil {
				return err
			}
			if err := txx.Where("space_id = ?", id).Delete(&types.Conversation{}).Error; err != nil {
				return err
			}
		}
		return txx.Where("id = ?", id).Delete(&types.LearningSpace{}).Error
	})
}
