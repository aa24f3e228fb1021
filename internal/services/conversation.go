package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/types"
)

// DefaultInactivityTimeout ends a conversation that has seen no message
// for this long. The sweep is lazy: a periodic ticker, not a per-session
// timer.
const DefaultInactivityTimeout = 30 * time.Minute

type ConversationService interface {
	Create(ctx context.Context, userID, spaceID uuid.UUID) (*types.Conversation, error)
	List(ctx context.Context, userID, spaceID uuid.UUID) ([]*types.Conversation, error)
	Get(ctx context.Context, userID, conversationID uuid.UUID) (*types.Conversation, []*types.Message, error)
	GetOrCreateActive(ctx context.Context, userID, spaceID uuid.UUID) (*types.Conversation, error)
	// End closes the conversation, emits session_ended once and enqueues
	// the extraction job exactly once. Ending an already-ended
	// conversation is a no-op, not an error.
	End(ctx context.Context, userID, conversationID uuid.UUID) error
	// StartSweeper runs the inactivity sweep until ctx is canceled.
	StartSweeper(ctx context.Context, interval time.Duration)
}

type conversationService struct {
	db        *gorm.DB
	log       *logger.Logger
	spaceRepo repos.SpaceRepo
	convRepo  repos.ConversationRepo
	msgRepo   repos.MessageRepo
	runRepo   repos.ExtractionRunRepo
	events    LearningEventService

	inactivity time.Duration
}

func NewConversationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	spaceRepo repos.SpaceRepo,
	convRepo repos.ConversationRepo,
	msgRepo repos.MessageRepo,
	runRepo repos.ExtractionRunRepo,
	events LearningEventService,
) ConversationService {
	return &conversationService{
		db:         db,
		log:        baseLog.With("service", "ConversationService"),
		spaceRepo:  spaceRepo,
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		runRepo:    runRepo,
		events:     events,
		inactivity: DefaultInactivityTimeout,
	}
}

func (s *conversationService) Create(ctx context.Context, userID, spaceID uuid.UUID) (*types.Conversation, error) {
	space, err := s.spaceRepo.GetByID(ctx, nil, spaceID)
	if err != nil {
		return nil, fmt.Errorf("load space: %w", err)
	}
	if space == nil || space.UserID != userID {
		return nil, fmt.Errorf("%w: space", apperr.ErrNotFound)
	}
	now := time.Now()
	conv := &types.Conversation{
		ID:            uuid.New(),
		SpaceID:       spaceID,
		UserID:        userID,
		StartedAt:     now,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return s.convRepo.Create(ctx, nil, conv)
}

func (s *conversationService) List(ctx context.Context, userID, spaceID uuid.UUID) ([]*types.Conversation, error) {
	space, err := s.spaceRepo.GetByID(ctx, nil, spaceID)
	if err != nil {
		return nil, fmt.Errorf("load space: %w", err)
	}
	if space == nil || space.UserID != userID {
		return nil, fmt.Errorf("%w: space", apperr.ErrNotFound)
	}
	return s.convRepo.GetBySpaceID(ctx, nil, spaceID)
}

func (s *conversationService) Get(ctx context.Context, userID, conversationID uuid.UUID) (*types.Conversation, []*types.Message, error) {
	conv, err := s.convRepo.GetByID(ctx, nil, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil || conv.UserID != userID {
		return nil, nil, fmt.Errorf("%w: conversation", apperr.ErrNotFound)
	}
	msgs, err := s.msgRepo.GetAllOrdered(ctx, nil, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load messages: %w", err)
	}
	// Answer keys never leave the service layer.
	redacted := make([]*types.Message, len(msgs))
	for i, m := range msgs {
		redacted[i] = redactMessage(m)
	}
	return conv, redacted, nil
}

func (s *conversationService) GetOrCreateActive(ctx context.Context, userID, spaceID uuid.UUID) (*types.Conversation, error) {
	convs, err := s.List(ctx, userID, spaceID)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		if c.Active() {
			return c, nil
		}
	}
	return s.Create(ctx, userID, spaceID)
}

func (s *conversationService) End(ctx context.Context, userID, conversationID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, nil, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil || conv.UserID != userID {
		return fmt.Errorf("%w: conversation", apperr.ErrNotFound)
	}
	return s.endConversation(ctx, conv)
}

// endConversation is shared between explicit close and the inactivity
// sweep. MarkEnded's conditional update guarantees at-most-once
// session_ended even under a close/sweep race; the enqueue is idempotent
// on conversation id.
func (s *conversationService) endConversation(ctx context.Context, conv *types.Conversation) error {
	now := time.Now()
	ended, err := s.convRepo.MarkEnded(ctx, nil, conv.ID, now)
	if err != nil {
		return fmt.Errorf("mark ended: %w", err)
	}

	// Enqueue runs on every call, not only the one that flipped ended_at.
	// It is idempotent on conversation id, so a retried End can repair a
	// close that ended the conversation but failed before the run row
	// was written.
	run := &types.ExtractionRun{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		SpaceID:        conv.SpaceID,
		Status:         types.ExtractionStatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, _, err := s.runRepo.Enqueue(ctx, nil, run); err != nil {
		return fmt.Errorf("enqueue extraction: %w", err)
	}
	if !ended {
		return nil
	}

	msgCount, err := s.msgRepo.CountByConversationID(ctx, nil, conv.ID)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	duration := int(now.Sub(conv.StartedAt).Minutes())

	convID := conv.ID
	spaceID := conv.SpaceID
	if err := s.events.Emit(ctx, nil, conv.UserID, &spaceID, &convID, types.EventSessionEnded, map[string]any{
		"user":             conv.UserID.String(),
		"conversation":     conv.ID.String(),
		"duration_minutes": duration,
		"message_count":    msgCount,
	}); err != nil {
		s.log.Warn("session_ended emit failed", "conversation_id", conv.ID, "error", err)
	}
	return nil
}

func (s *conversationService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

func (s *conversationService) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.inactivity)
	stale, err := s.convRepo.GetStaleActive(ctx, nil, cutoff, 50)
	if err != nil {
		s.log.Warn("Inactivity sweep query failed", "error", err)
		return
	}
	// MarkEnded's conditional update makes concurrent ends safe.
	var g errgroup.Group
	g.SetLimit(8)
	for _, conv := range stale {
		conv := conv
		g.Go(func() error {
			if err := s.endConversation(ctx, conv); err != nil {
				s.log.Warn("Inactivity sweep end failed", "conversation_id", conv.ID, "error", err)
			} else {
				s.log.Info("Conversation ended by inactivity", "conversation_id", conv.ID)
			}
			return nil
		})
	}
	_ = g.Wait()
}
