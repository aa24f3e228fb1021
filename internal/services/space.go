package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/types"
)

type SpaceService interface {
	Create(ctx context.Context, userID uuid.UUID, name, topic, goal string) (*types.LearningSpace, error)
	List(ctx context.Context, userID uuid.UUID) ([]*types.LearningSpace, error)
	Get(ctx context.Context, userID, spaceID uuid.UUID) (*types.LearningSpace, error)
	Delete(ctx context.Context, userID, spaceID uuid.UUID) error
}

type spaceService struct {
	db        *gorm.DB
	log       *logger.Logger
	spaceRepo repos.SpaceRepo
}

func NewSpaceService(db *gorm.DB, baseLog *logger.Logger, spaceRepo repos.SpaceRepo) SpaceService {
	return &spaceService{
		db:        db,
		log:       baseLog.With("service", "SpaceService"),
		spaceRepo: spaceRepo,
	}
}

func (s *spaceService) Create(ctx context.Context, userID uuid.UUID, name, topic, goal string) (*types.LearningSpace, error) {
	name = strings.TrimSpace(name)
	topic = strings.TrimSpace(topic)
	if name == "" || topic == "" {
		return nil, fmt.Errorf("%w: name and topic are required", apperr.ErrValidation)
	}
	now := time.Now()
	space := &types.LearningSpace{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Topic:     topic,
		Goal:      strings.TrimSpace(goal),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.spaceRepo.Create(ctx, nil, space)
}

func (s *spaceService) List(ctx context.Context, userID uuid.UUID) ([]*types.LearningSpace, error) {
	return s.spaceRepo.GetByUserID(ctx, nil, userID)
}

func (s *spaceService) Get(ctx context.Context, userID, spaceID uuid.UUID) (*types.LearningSpace, error) {
	space, err := s.spaceRepo.GetByID(ctx, nil, spaceID)
	if err != nil {
		return nil, fmt.Errorf("load space: %w", err)
	}
	if space == nil || space.UserID != userID {
		return nil, fmt.Errorf("%w: space", apperr.ErrNotFound)
	}
	return space, nil
}

func (s *spaceService) Delete(ctx context.Context, userID, spaceID uuid.UUID) error {
	space, err := s.Get(ctx, userID, spaceID)
	if err != nil {
		return err
	}
	return s.spaceRepo.Delete(ctx, nil, space.ID)
}
