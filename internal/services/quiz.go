package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/quiz"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/types"
)

type QuizService interface {
	// SubmitResponses grades a full answer set against the quiz embedded
	// in the message, completes it exactly once and mirrors the graded
	// answers into quiz_attempt rows. Partial sets are rejected with no
	// transition; a second submission is a conflict.
	SubmitResponses(ctx context.Context, userID, messageID uuid.UUID, answers []quiz.Answer) (*types.Message, error)
}

type quizService struct {
	db          *gorm.DB
	log         *logger.Logger
	spaceRepo   repos.SpaceRepo
	convRepo    repos.ConversationRepo
	msgRepo     repos.MessageRepo
	attemptRepo repos.QuizAttemptRepo
	events      LearningEventService

	// submissions serializes completion per message within this process;
	// the pending-status check inside the transaction backs it up.
	submissions turnGuard
}

func NewQuizService(
	db *gorm.DB,
	baseLog *logger.Logger,
	spaceRepo repos.SpaceRepo,
	convRepo repos.ConversationRepo,
	msgRepo repos.MessageRepo,
	attemptRepo repos.QuizAttemptRepo,
	events LearningEventService,
) QuizService {
	return &quizService{
		db:          db,
		log:         baseLog.With("service", "QuizService"),
		spaceRepo:   spaceRepo,
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		attemptRepo: attemptRepo,
		events:      events,
	}
}

func (s *quizService) SubmitResponses(ctx context.Context, userID, messageID uuid.UUID, answers []quiz.Answer) (*types.Message, error) {
	if !s.submissions.tryAcquire(messageID) {
		return nil, fmt.Errorf("%w: submission already in progress for this quiz", apperr.ErrConflict)
	}
	defer s.submissions.release(messageID)

	msg, err := s.msgRepo.GetByID(ctx, nil, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message", apperr.ErrNotFound)
	}

	conv, err := s.convRepo.GetByID(ctx, nil, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil || conv.UserID != userID {
		return nil, fmt.Errorf("%w: message", apperr.ErrNotFound)
	}

	payload, ok := msg.QuizPayload()
	if !ok {
		return nil, fmt.Errorf("%w: no pending quiz on this message", apperr.ErrConflict)
	}

	now := time.Now()
	if err := quiz.Complete(payload, answers, now); err != nil {
		return nil, err
	}

	topic := ""
	if space, sErr := s.spaceRepo.GetByID(ctx, nil, conv.SpaceID); sErr == nil && space != nil {
		topic = space.Topic
	}

	attempts := buildAttempts(payload, msg, conv, topic, now)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := msg.SetQuizPayload(payload); err != nil {
			return fmt.Errorf("encode quiz payload: %w", err)
		}
		if err := s.msgRepo.UpdateMetadata(ctx, tx, msg.ID, msg.Metadata); err != nil {
			return fmt.Errorf("persist quiz completion: %w", err)
		}
		if _, err := s.attemptRepo.Create(ctx, tx, attempts); err != nil {
			return fmt.Errorf("persist quiz attempts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	correct, total := payload.CorrectCount()
	convID, spaceID := conv.ID, conv.SpaceID
	if err := s.events.Emit(ctx, nil, userID, &spaceID, &convID, types.EventQuizAttempted, map[string]any{
		"user":         userID.String(),
		"conversation": conv.ID.String(),
		"topic":        topic,
		"correct":      correct,
		"attempts":     total,
	}); err != nil {
		s.log.Warn("quiz_attempted emit failed", "message_id", msg.ID, "error", err)
	}

	return redactMessage(msg), nil
}

func buildAttempts(payload *types.QuizPayload, msg *types.Message, conv *types.Conversation, topic string, now time.Time) []*types.QuizAttempt {
	byQuestion := make(map[string]types.QuizResponse, len(payload.Responses))
	for _, r := range payload.Responses {
		byQuestion[r.QuestionID] = r
	}

	msgID, convID, spaceID := msg.ID, conv.ID, conv.SpaceID
	attempts := make([]*types.QuizAttempt, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		r := byQuestion[q.ID]
		attempts = append(attempts, &types.QuizAttempt{
			ID:             uuid.New(),
			UserID:         conv.UserID,
			SpaceID:        &spaceID,
			ConversationID: &convID,
			MessageID:      &msgID,
			Topic:          topic,
			QuestionText:   q.Text,
			UserAnswer:     r.UserAnswer,
			IsCorrect:      r.IsCorrect,
			Attempts:       1,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return attempts
}
