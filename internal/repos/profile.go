package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/types"
)

type ProfileRepo interface {
	Create(ctx context.Context, tx *gorm.DB, profile *types.LearnerProfile) (*types.LearnerProfile, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.LearnerProfile, error)
	GetOrCreateByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.LearnerProfile, error)
	UpdateUserFields(ctx context.Context, tx *gorm.DB, userID uuid.UUID, updates map[string]interface{}) error
	SaveLearningState(ctx context.Context, tx *gorm.DB, profile *types.LearnerProfile) error
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: baseLog.With("repo", "ProfileRepo")}
}

func (r *profileRepo) Create(ctx context.Context, tx *gorm.DB, profile *types.LearnerProfile) (*types.LearnerProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *profileRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.LearnerProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var profile types.LearnerProfile
	err := transaction.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepo) GetOrCreateByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.LearnerProfile, error) {
	profile, err := r.GetByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}
	return r.Create(ctx, tx, types.NewEmptyProfile(userID))
}

// UpdateUserFields writes only the user-owned columns (goals, background,
// preferences, display name). Learning state stays untouched so an
// in-flight extraction merge cannot be clobbered.
func (r *profileRepo) UpdateUserFields(ctx context.Context, tx *gorm.DB, userID uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	allowed := map[string]bool{
		"display_name": true,
		"goals":        true,
		"background":   true,
		"preferences":  true,
	}
	filtered := map[string]interface{}{}
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	filtered["updated_at"] = time.Now()
	return transaction.WithContext(ctx).
		Model(&types.LearnerProfile{}).
		Where("user_id = ?", userID).
		Updates(filtered).Error
}

// SaveLearningState writes only the extraction-owned columns. The caller
// holds the profile row inside a transaction; the column scoping is what
// keeps user preference edits and merges from overwriting each other.
func (r *profileRepo) SaveLearningState(ctx context.Context, tx *gorm.DB, profile *types.LearnerProfile) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"topics":          ensureJSON(profile.Topics),
		"observations":    ensureJSON(profile.Observations),
		"open_questions":  ensureJSON(profile.OpenQuestions),
		"recent_sessions": ensureJSON(profile.RecentSessions),
		"current_topic":   profile.CurrentTopic,
		"last_session_at": profile.LastSessionAt,
		"updated_at":      time.Now(),
	}
	return transaction.WithContext(ctx).
		Model(&types.LearnerProfile{}).
		Where("id = ?", profile.ID).
		Updates(updates).Error
}

func ensureJSON(j datatypes.JSON) datatypes.JSON {
	if len(j) == 0 {
		return datatypes.JSON([]byte(`null`))
	}
	return j
}
