package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/apperr"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/types"
)

const (
	// DefaultExtractionPollInterval is how often the worker looks for
	// runnable extraction runs.
	DefaultExtractionPollInterval = 5 * time.Second

	extractionMaxAttempts  = 3
	extractionRetryDelay   = 30 * time.Second
	extractionStaleRunning = 5 * time.Minute
	extractionRunTimeout   = 2 * time.Minute

	// extractionMaxMsgChars caps each transcript line fed to the analysis
	// call. The stored message is never truncated, only the prompt copy.
	extractionMaxMsgChars = 2000
)

// ExtractionService reconciles ended conversations into the learner
// profile. Runs are claimed from the extraction_run table, so any number
// of workers can poll concurrently without double-processing.
type ExtractionService interface {
	StartWorker(ctx context.Context, interval time.Duration)
	// ProcessNext claims and processes at most one runnable run.
	// Returns true when a run was claimed.
	ProcessNext(ctx context.Context) (bool, error)
}

type extractionService struct {
	db  *gorm.DB
	log *logger.Logger

	spaceRepo   repos.SpaceRepo
	convRepo    repos.ConversationRepo
	msgRepo     repos.MessageRepo
	profileRepo repos.ProfileRepo
	attemptRepo repos.QuizAttemptRepo
	runRepo     repos.ExtractionRunRepo
	events      LearningEventService
	ai          CompletionClient
}

func NewExtractionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	spaceRepo repos.SpaceRepo,
	convRepo repos.ConversationRepo,
	msgRepo repos.MessageRepo,
	profileRepo repos.ProfileRepo,
	attemptRepo repos.QuizAttemptRepo,
	runRepo repos.ExtractionRunRepo,
	events LearningEventService,
	ai CompletionClient,
) ExtractionService {
	return &extractionService{
		db:          db,
		log:         baseLog.With("service", "ExtractionService"),
		spaceRepo:   spaceRepo,
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		profileRepo: profileRepo,
		attemptRepo: attemptRepo,
		runRepo:     runRepo,
		events:      events,
		ai:          ai,
	}
}

func (s *extractionService) StartWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultExtractionPollInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		s.log.Info("extraction worker started", "poll_interval", interval.String())
		for {
			select {
			case <-ctx.Done():
				s.log.Info("extraction worker stopped")
				return
			case <-ticker.C:
				// Drain the queue on each tick rather than one run per tick.
				for {
					processed, err := s.ProcessNext(ctx)
					if err != nil {
						s.log.Error("extraction pass failed", "error", err)
						break
					}
					if !processed {
						break
					}
				}
			}
		}
	}()
}

func (s *extractionService) ProcessNext(ctx context.Context) (bool, error) {
	run, err := s.runRepo.ClaimNextRunnable(ctx, nil, extractionMaxAttempts, extractionRetryDelay, extractionStaleRunning)
	if err != nil {
		return false, fmt.Errorf("claim extraction run: %w", err)
	}
	if run == nil {
		return false, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, extractionRunTimeout)
	defer cancel()

	if err := s.processRun(runCtx, run); err != nil {
		s.failRun(ctx, run, err)
	}
	return true, nil
}

func (s *extractionService) processRun(ctx context.Context, run *types.ExtractionRun) error {
	started := time.Now()

	conv, err := s.convRepo.GetByID(ctx, nil, run.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return fmt.Errorf("conversation %s not found", run.ConversationID)
	}
	if conv.ExtractedAt != nil {
		// Another run (or a retried attempt that crashed after commit)
		// already reconciled this conversation.
		return s.finishRun(ctx, run, true)
	}

	if err := s.events.Emit(ctx, nil, run.UserID, &run.SpaceID, &run.ConversationID, types.EventBackgroundJobStarted, map[string]any{
		"job":     "extraction",
		"attempt": run.Attempts,
	}); err != nil {
		s.log.Warn("background_job_started emit failed", "run_id", run.ID, "error", err)
	}

	msgs, err := s.msgRepo.GetAllOrdered(ctx, nil, conv.ID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	profile, err := s.profileRepo.GetOrCreateByUserID(ctx, nil, conv.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	space, err := s.spaceRepo.GetByID(ctx, nil, conv.SpaceID)
	if err != nil {
		return fmt.Errorf("load space: %w", err)
	}

	input := buildExtractionInput(profile, space, msgs)
	raw, err := s.ai.Complete(ctx, extractionSystemPrompt, []CompletionTurn{
		{Role: types.RoleUser, Content: input},
	}, CompletionOpts{CostHint: CostHintCheap, MaxTokens: 2048})
	if err != nil {
		return fmt.Errorf("analysis completion: %w", err)
	}
	res, err := parseExtractionResult(raw)
	if err != nil {
		return err
	}

	delta := buildDelta(conv, space, msgs, res)

	var outcome mergeOutcome
	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		// Re-read inside the transaction so the merge applies to the
		// current state, not the snapshot read above.
		fresh, txErr := s.profileRepo.GetOrCreateByUserID(ctx, txx, conv.UserID)
		if txErr != nil {
			return txErr
		}
		outcome = applyDelta(fresh, delta)
		if txErr := s.profileRepo.SaveLearningState(ctx, txx, fresh); txErr != nil {
			return txErr
		}
		if txErr := s.convRepo.MarkExtracted(ctx, txx, conv.ID, time.Now(), res.Synopsis); txErr != nil {
			return txErr
		}
		if attempts := buildAssessmentAttempts(conv, res.Assessments); len(attempts) > 0 {
			if _, txErr := s.attemptRepo.Create(ctx, txx, attempts); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply profile delta: %w", err)
	}

	s.emitOutcomeEvents(ctx, run, outcome, res)
	if err := s.finishRun(ctx, run, false); err != nil {
		return err
	}

	if err := s.events.Emit(ctx, nil, run.UserID, &run.SpaceID, &run.ConversationID, types.EventBackgroundJobCompleted, map[string]any{
		"job":         "extraction",
		"attempt":     run.Attempts,
		"duration_ms": time.Since(started).Milliseconds(),
		"success":     true,
	}); err != nil {
		s.log.Warn("background_job_completed emit failed", "run_id", run.ID, "error", err)
	}

	s.log.Info("extraction run succeeded",
		"run_id", run.ID,
		"conversation_id", run.ConversationID,
		"topics", len(outcome.TopicChanges),
		"duration_ms", time.Since(started).Milliseconds())
	return nil
}

// finishRun marks the run succeeded. noop distinguishes runs that found the
// conversation already extracted.
func (s *extractionService) finishRun(ctx context.Context, run *types.ExtractionRun, noop bool) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      types.ExtractionStatusSucceeded,
		"finished_at": now,
		"error":       "",
	}
	if noop {
		meta, _ := json.Marshal(map[string]any{"noop": true})
		updates["metadata"] = datatypes.JSON(meta)
	}
	if err := s.runRepo.UpdateFields(ctx, nil, run.ID, updates); err != nil {
		return fmt.Errorf("mark run succeeded: %w", err)
	}
	return nil
}

func (s *extractionService) failRun(ctx context.Context, run *types.ExtractionRun, cause error) {
	now := time.Now()
	terminal := run.Attempts >= extractionMaxAttempts
	if terminal {
		cause = fmt.Errorf("%w: %v", apperr.ErrExtractionFailed, cause)
	}
	s.log.Error("extraction run failed",
		"run_id", run.ID,
		"conversation_id", run.ConversationID,
		"attempt", run.Attempts,
		"error", cause)

	if err := s.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
		"status":        types.ExtractionStatusFailed,
		"error":         cause.Error(),
		"last_error_at": now,
	}); err != nil {
		s.log.Error("mark run failed errored", "run_id", run.ID, "error", err)
	}

	if terminal {
		if err := s.events.Emit(ctx, nil, run.UserID, &run.SpaceID, &run.ConversationID, types.EventBackgroundJobFailed, map[string]any{
			"job":      "extraction",
			"attempts": run.Attempts,
			"error":    cause.Error(),
		}); err != nil {
			s.log.Warn("background_job_failed emit failed", "run_id", run.ID, "error", err)
		}
	}
}

func (s *extractionService) emitOutcomeEvents(ctx context.Context, run *types.ExtractionRun, outcome mergeOutcome, res *extractionResult) {
	emit := func(eventType string, payload map[string]any) {
		if err := s.events.Emit(ctx, nil, run.UserID, &run.SpaceID, &run.ConversationID, eventType, payload); err != nil {
			s.log.Warn("extraction event emit failed", "type", eventType, "error", err)
		}
	}

	for _, ch := range outcome.TopicChanges {
		if ch.IsNew {
			emit(types.EventTopicIntroduced, map[string]any{"topic": ch.Topic})
		} else {
			payload := map[string]any{"topic": ch.Topic}
			if ch.Prior != nil {
				payload["prior_comprehension"] = *ch.Prior
			}
			emit(types.EventTopicRevisited, payload)
		}
		if ch.New != nil && (ch.Prior == nil || *ch.Prior != *ch.New) {
			payload := map[string]any{"topic": ch.Topic, "new_level": *ch.New}
			if ch.Prior != nil {
				payload["old_level"] = *ch.Prior
			}
			emit(types.EventComprehensionUpdated, payload)
		}
	}

	flagPayload := func() map[string]any {
		p := map[string]any{"source": "extraction", "context": res.Synopsis}
		if topic := normalizeTopicKey(res.CurrentTopic); topic != "" {
			p["topic"] = topic
		}
		return p
	}
	if res.Flags.Frustration {
		emit(types.EventFrustrationDetected, flagPayload())
	}
	if res.Flags.Struggle {
		emit(types.EventStruggleDetected, flagPayload())
	}
	if res.Flags.Breakthrough {
		emit(types.EventBreakthroughMoment, flagPayload())
	}
	if res.Flags.PracticeRequested {
		emit(types.EventPracticeRequested, flagPayload())
	}
}

// buildDelta converts the validated analysis result plus the conversation's
// own timestamps into the field-scoped delta applyDelta consumes.
func buildDelta(conv *types.Conversation, space *types.LearningSpace, msgs []*types.Message, res *extractionResult) *types.ProfileDelta {
	endedAt := conv.LastMessageAt
	if conv.EndedAt != nil {
		endedAt = *conv.EndedAt
	}
	durationMin := int(endedAt.Sub(conv.StartedAt).Minutes())
	if durationMin < 0 {
		durationMin = 0
	}

	topics := make(map[string]types.TopicDelta, len(res.Topics))
	modelScores := 0
	for _, t := range res.Topics {
		key := normalizeTopicKey(t.Name)
		if key == "" {
			continue
		}
		topics[key] = types.TopicDelta{
			Comprehension: t.Comprehension,
			Notes:         t.Note,
			QuizScores:    t.QuizScores,
			Quizzed:       t.Quizzed,
			SeenAt:        endedAt,
		}
		modelScores += len(t.QuizScores)
	}

	// Embedded quiz results are graded facts. If the analysis dropped
	// them, attach the stored scores rather than lose the signal, creating
	// the topic from the current topic or the space topic when the
	// analysis returned none at all.
	if sessionScores := completedQuizScores(msgs); modelScores == 0 && len(sessionScores) > 0 {
		key := normalizeTopicKey(res.CurrentTopic)
		if _, ok := topics[key]; !ok {
			for k := range topics {
				key = k
				break
			}
		}
		if key == "" && space != nil {
			key = normalizeTopicKey(space.Topic)
		}
		if key != "" {
			td := topics[key]
			td.QuizScores = sessionScores
			td.Quizzed = true
			if td.SeenAt.IsZero() {
				td.SeenAt = endedAt
			}
			topics[key] = td
		}
	}

	discussed := make([]string, 0, len(res.TopicsDiscussed))
	for _, t := range res.TopicsDiscussed {
		if key := normalizeTopicKey(t); key != "" {
			discussed = append(discussed, key)
		}
	}

	return &types.ProfileDelta{
		Summary: types.SessionSummary{
			ConversationID:  conv.ID,
			Date:            endedAt,
			DurationMinutes: durationMin,
			Synopsis:        res.Synopsis,
			TopicsDiscussed: discussed,
			Mood:            res.Mood,
		},
		Topics:        topics,
		Observations:  res.Observations,
		OpenQuestions: res.OpenQuestions,
		CurrentTopic:  res.CurrentTopic,
		LastSessionAt: endedAt,
	}
}

// completedQuizScores flattens per-question 1.0/0.0 scores from every
// completed embedded quiz in the transcript, in message order.
func completedQuizScores(msgs []*types.Message) []float64 {
	var scores []float64
	for _, m := range msgs {
		payload, ok := m.QuizPayload()
		if !ok || !payload.Completed() {
			continue
		}
		for _, r := range payload.Responses {
			if r.IsCorrect {
				scores = append(scores, 1.0)
			} else {
				scores = append(scores, 0.0)
			}
		}
	}
	return scores
}

func buildAssessmentAttempts(conv *types.Conversation, assessments []extractedAssessment) []*types.QuizAttempt {
	out := make([]*types.QuizAttempt, 0, len(assessments))
	now := time.Now()
	meta, _ := json.Marshal(map[string]any{"source": "extraction"})
	for _, a := range assessments {
		question := strings.TrimSpace(a.Question)
		if question == "" {
			continue
		}
		spaceID := conv.SpaceID
		convID := conv.ID
		out = append(out, &types.QuizAttempt{
			ID:             uuid.New(),
			UserID:         conv.UserID,
			SpaceID:        &spaceID,
			ConversationID: &convID,
			Topic:          normalizeTopicKey(a.Topic),
			QuestionText:   question,
			UserAnswer:     a.UserAnswer,
			IsCorrect:      a.Correct,
			Attempts:       1,
			Metadata:       datatypes.JSON(meta),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return out
}

const extractionSystemPrompt = `You analyze a finished tutoring session transcript and report structured learning signals as JSON.

Respond with a single JSON object, nothing else, with exactly these fields:
{
  "synopsis": "one or two sentences describing what the session covered",
  "mood": "engaged" | "frustrated" | "confused" | "confident" | "neutral",
  "topics_discussed": ["topic name", ...],
  "topics": [
    {
      "name": "topic name",
      "comprehension": 1-5 or omit,
      "note": "short qualitative note, required when comprehension dropped",
      "quiz_scores": [1.0, 0.0, ...],
      "quizzed": true/false
    }
  ],
  "observations": ["durable observation about how this learner learns", ...],
  "open_questions": ["question the learner raised that was not resolved", ...],
  "current_topic": "the topic the session ended on, or empty",
  "assessments": [
    {"topic": "...", "question": "...", "user_answer": "...", "correct": true/false}
  ],
  "flags": {"frustration": false, "struggle": false, "breakthrough": false, "practice_requested": false}
}

Rules:
- Reuse the learner's known topic names verbatim when the session concerns the same concept. Introduce a new name only for a genuinely new topic.
- Include a comprehension level only when the transcript gives real evidence of understanding or misunderstanding. Omit it otherwise.
- Copy the graded quiz results listed below into quiz_scores on the matching topic, one entry per question, 1.0 for correct and 0.0 for incorrect.
- assessments lists conversational moments where the learner's answer to a direct knowledge check revealed understanding. Do not repeat the formatted quizzes, they are already recorded.
- Flags are conservative. Set one only when the transcript clearly shows it. When unsure, leave it false.
- observations are durable traits, not session recaps. Return an empty list when nothing new stands out.
- For a trivial session with no learning content, return empty topics, empty observations and an honest synopsis.`

func buildExtractionInput(profile *types.LearnerProfile, space *types.LearningSpace, msgs []*types.Message) string {
	var b strings.Builder

	if space != nil {
		b.WriteString("## Learning space\n")
		fmt.Fprintf(&b, "Topic: %s\n", space.Topic)
		if space.Goal != "" {
			fmt.Fprintf(&b, "Goal: %s\n", space.Goal)
		}
		b.WriteString("\n")
	}

	if topics := profile.TopicMap(); len(topics) > 0 {
		b.WriteString("## Known topics\n")
		for name := range topics {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Transcript\n")
	for _, m := range msgs {
		content := m.Content
		if len(content) > extractionMaxMsgChars {
			content = content[:extractionMaxMsgChars] + "..."
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, content)
	}

	var quizLines []string
	for _, m := range msgs {
		payload, ok := m.QuizPayload()
		if !ok || !payload.Completed() {
			continue
		}
		for _, r := range payload.Responses {
			verdict := "incorrect"
			if r.IsCorrect {
				verdict = "correct"
			}
			question := questionText(payload, r.QuestionID)
			quizLines = append(quizLines, fmt.Sprintf("- %q answered %q (%s)", question, r.UserAnswer, verdict))
		}
	}
	if len(quizLines) > 0 {
		b.WriteString("\n## Graded quiz results\n")
		b.WriteString(strings.Join(quizLines, "\n"))
		b.WriteString("\n")
	}

	return b.String()
}

func questionText(p *types.QuizPayload, questionID string) string {
	for _, q := range p.Questions {
		if q.ID == questionID {
			return q.Text
		}
	}
	return questionID
}
