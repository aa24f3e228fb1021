package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/types"
)

// ProfileUpdateInput carries the user-editable profile fields. Nil means
// leave the field as is.
type ProfileUpdateInput struct {
	DisplayName *string        `json:"display_name,omitempty"`
	Goals       *string        `json:"goals,omitempty"`
	Background  *string        `json:"background,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

type ProfileService interface {
	Get(ctx context.Context, userID uuid.UUID) (*types.LearnerProfile, error)
	Update(ctx context.Context, userID uuid.UUID, input ProfileUpdateInput) (*types.LearnerProfile, error)
}

type profileService struct {
	db          *gorm.DB
	log         *logger.Logger
	profileRepo repos.ProfileRepo
}

func NewProfileService(db *gorm.DB, baseLog *logger.Logger, profileRepo repos.ProfileRepo) ProfileService {
	return &profileService{
		db:          db,
		log:         baseLog.With("service", "ProfileService"),
		profileRepo: profileRepo,
	}
}

func (s *profileService) Get(ctx context.Context, userID uuid.UUID) (*types.LearnerProfile, error) {
	profile, err := s.profileRepo.GetOrCreateByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

// Update writes only the user-owned columns. Learning state mutates
// exclusively through extraction, so a preference edit can never collide
// with an in-flight merge.
func (s *profileService) Update(ctx context.Context, userID uuid.UUID, input ProfileUpdateInput) (*types.LearnerProfile, error) {
	updates := map[string]interface{}{}
	if input.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*input.DisplayName)
	}
	if input.Goals != nil {
		updates["goals"] = strings.TrimSpace(*input.Goals)
	}
	if input.Background != nil {
		updates["background"] = strings.TrimSpace(*input.Background)
	}
	if input.Preferences != nil {
		raw, err := json.Marshal(input.Preferences)
		if err != nil {
			return nil, fmt.Errorf("%w: preferences must be a JSON object", apperr.ErrValidation)
		}
		updates["preferences"] = datatypes.JSON(raw)
	}
	if len(updates) == 0 {
		return s.Get(ctx, userID)
	}

	if _, err := s.profileRepo.GetOrCreateByUserID(ctx, nil, userID); err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := s.profileRepo.UpdateUserFields(ctx, nil, userID, updates); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.Get(ctx, userID)
}
