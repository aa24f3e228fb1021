package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/clients/redis"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/types"
)

// LearningEventService appends to the durable event log and mirrors each
// event to the analytics bus when one is configured. Emission is tolerated
// inside a caller's transaction via the tx parameter.
type LearningEventService interface {
	Emit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, spaceID, conversationID *uuid.UUID, eventType string, payload map[string]any) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*types.LearningEvent, error)
}

type learningEventService struct {
	db        *gorm.DB
	log       *logger.Logger
	eventRepo repos.LearningEventRepo
	bus       redis.EventBus // nil when analytics fanout is disabled
}

func NewLearningEventService(db *gorm.DB, baseLog *logger.Logger, eventRepo repos.LearningEventRepo, bus redis.EventBus) LearningEventService {
	return &learningEventService{
		db:        db,
		log:       baseLog.With("service", "LearningEventService"),
		eventRepo: eventRepo,
		bus:       bus,
	}
}

func (s *learningEventService) Emit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, spaceID, conversationID *uuid.UUID, eventType string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["ts"]; !ok {
		payload["ts"] = time.Now().UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &types.LearningEvent{
		ID:             uuid.New(),
		UserID:         userID,
		SpaceID:        spaceID,
		ConversationID: conversationID,
		Type:           eventType,
		Data:           datatypes.JSON(raw),
		CreatedAt:      time.Now(),
	}
	if _, err := s.eventRepo.Create(ctx, tx, []*types.LearningEvent{event}); err != nil {
		return err
	}

	if s.bus != nil {
		if pubErr := s.bus.Publish(ctx, event); pubErr != nil {
			s.log.Warn("Event bus publish failed", "type", eventType, "error", pubErr)
		}
	}
	return nil
}

func (s *learningEventService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*types.LearningEvent, error) {
	return s.eventRepo.GetByUserID(ctx, nil, userID, limit)
}
