package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/quiz"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/types"
)

// TutorService is the per-turn control loop: it persists the user turn,
// assembles context, calls the completion service, detects embedded
// quizzes and persists the tutor reply.
type TutorService interface {
	// SendMessage runs one turn. The user message is durable before the
	// completion call, so an upstream failure is retryable without
	// duplicating it. Returns the stored assistant message (quiz answer
	// keys redacted) and whether it embeds a quiz.
	SendMessage(ctx context.Context, userID, conversationID uuid.UUID, content string) (*types.Message, bool, error)
}

type tutorService struct {
	db          *gorm.DB
	log         *logger.Logger
	spaceRepo   repos.SpaceRepo
	convRepo    repos.ConversationRepo
	msgRepo     repos.MessageRepo
	profileRepo repos.ProfileRepo
	events      LearningEventService
	ai          CompletionClient

	promptCfg PromptConfig
	turns     turnGuard
}

func NewTutorService(
	db *gorm.DB,
	baseLog *logger.Logger,
	spaceRepo repos.SpaceRepo,
	convRepo repos.ConversationRepo,
	msgRepo repos.MessageRepo,
	profileRepo repos.ProfileRepo,
	events LearningEventService,
	ai CompletionClient,
) TutorService {
	return &tutorService{
		db:          db,
		log:         baseLog.With("service", "TutorService"),
		spaceRepo:   spaceRepo,
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		profileRepo: profileRepo,
		events:      events,
		ai:          ai,
		promptCfg:   DefaultPromptConfig(),
	}
}

// turnGuard serializes turns per conversation. A second in-flight turn on
// the same conversation is rejected, never queued: last-writer-wins is
// unacceptable. Different conversations proceed fully in parallel.
type turnGuard struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func (g *turnGuard) tryAcquire(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = map[uuid.UUID]struct{}{}
	}
	if _, busy := g.active[id]; busy {
		return false
	}
	g.active[id] = struct{}{}
	return true
}

func (g *turnGuard) release(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, id)
}

func (s *tutorService) SendMessage(ctx context.Context, userID, conversationID uuid.UUID, content string) (*types.Message, bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false, fmt.Errorf("%w: message content is required", apperr.ErrValidation)
	}

	conv, err := s.convRepo.GetByID(ctx, nil, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil || conv.UserID != userID {
		return nil, false, fmt.Errorf("%w: conversation", apperr.ErrNotFound)
	}
	if !conv.Active() {
		return nil, false, fmt.Errorf("%w: conversation already ended", apperr.ErrConflict)
	}

	if !s.turns.tryAcquire(conversationID) {
		return nil, false, fmt.Errorf("%w: another turn is in flight on this conversation", apperr.ErrConflict)
	}
	defer s.turns.release(conversationID)

	space, err := s.spaceRepo.GetByID(ctx, nil, conv.SpaceID)
	if err != nil {
		return nil, false, fmt.Errorf("load space: %w", err)
	}
	if space == nil {
		return nil, false, fmt.Errorf("%w: space", apperr.ErrNotFound)
	}

	priorCount, err := s.msgRepo.CountByConversationID(ctx, nil, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("count messages: %w", err)
	}

	now := time.Now()
	userMsg := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           types.RoleUser,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.msgRepo.Append(ctx, nil, userMsg); err != nil {
		return nil, false, fmt.Errorf("store user message: %w", err)
	}
	if err := s.convRepo.TouchLastMessage(ctx, nil, conversationID, now); err != nil {
		s.log.Warn("touch last_message_at failed", "conversation_id", conversationID, "error", err)
	}

	if priorCount == 0 {
		spaceID, convID := conv.SpaceID, conv.ID
		if err := s.events.Emit(ctx, nil, userID, &spaceID, &convID, types.EventSessionStarted, map[string]any{
			"user":         userID.String(),
			"conversation": conv.ID.String(),
			"space":        conv.SpaceID.String(),
		}); err != nil {
			s.log.Warn("session_started emit failed", "conversation_id", conv.ID, "error", err)
		}
	}

	tail, err := s.msgRepo.GetRecent(ctx, nil, conversationID, s.promptCfg.MaxTailMessages)
	if err != nil {
		return nil, false, fmt.Errorf("load tail: %w", err)
	}

	profile, err := s.profileRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load profile: %w", err)
	}

	system := BuildPrompt(PromptInput{
		Profile:     profile,
		Space:       space,
		Tail:        tail,
		QuizHistory: sessionQuizHistory(tail),
	}, s.promptCfg)

	reply, err := s.ai.Complete(ctx, system, completionTurns(tail), CompletionOpts{})
	if err != nil {
		// The user message stays durable; the caller may retry the turn.
		return nil, false, fmt.Errorf("generate tutor reply: %w", err)
	}

	assistantMsg, hasQuiz, err := s.storeReply(ctx, conversationID, reply)
	if err != nil {
		return nil, false, err
	}
	return redactMessage(assistantMsg), hasQuiz, nil
}

func (s *tutorService) storeReply(ctx context.Context, conversationID uuid.UUID, reply string) (*types.Message, bool, error) {
	now := time.Now()
	msg := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           types.RoleAssistant,
		Content:        reply,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	payload, hasQuiz := quiz.Parse(reply)
	if hasQuiz {
		// Content keeps only the prose; the typed payload (with the
		// answer key) lives in the metadata bag, parsed exactly once.
		msg.Content = quiz.StripBlock(reply)
		if err := msg.SetQuizPayload(payload); err != nil {
			return nil, false, fmt.Errorf("encode quiz payload: %w", err)
		}
	}

	if _, err := s.msgRepo.Append(ctx, nil, msg); err != nil {
		return nil, false, fmt.Errorf("store assistant message: %w", err)
	}
	if err := s.convRepo.TouchLastMessage(ctx, nil, conversationID, now); err != nil {
		s.log.Warn("touch last_message_at failed", "conversation_id", conversationID, "error", err)
	}
	return msg, hasQuiz, nil
}

// completionTurns maps the tail to completion-service turns, user and
// assistant roles only, oldest first.
func completionTurns(tail []*types.Message) []CompletionTurn {
	out := make([]CompletionTurn, 0, len(tail))
	for _, m := range tail {
		if m.Role != types.RoleUser && m.Role != types.RoleAssistant {
			continue
		}
		out = append(out, CompletionTurn{Role: m.Role, Content: m.Content})
	}
	return out
}

// sessionQuizHistory collects embedded quiz payloads from the tail,
// oldest first, for the prompt's quiz summary.
func sessionQuizHistory(tail []*types.Message) []*types.QuizPayload {
	var out []*types.QuizPayload
	for _, m := range tail {
		if p, ok := m.QuizPayload(); ok {
			out = append(out, p)
		}
	}
	return out
}

// redactMessage returns a copy safe to hand to the client: quiz answer
// keys are stripped from the metadata bag.
func redactMessage(msg *types.Message) *types.Message {
	payload, ok := msg.QuizPayload()
	if !ok {
		return msg
	}
	out := *msg
	if err := out.SetQuizPayload(payload.Redacted()); err != nil {
		out.Metadata = nil
	}
	return &out
}
