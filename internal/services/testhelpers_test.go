package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lumalearn/luma-backend/internal/db"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/types"
)

// fakeCompletion is a scripted CompletionClient. Replies pop in order;
// once exhausted it keeps returning the last one. Every call is recorded.
type fakeCompletion struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []fakeCall
}

type fakeCall struct {
	System string
	Turns  []CompletionTurn
	Opts   CompletionOpts
}

func (f *fakeCompletion) Complete(_ context.Context, system string, turns []CompletionTurn, opts CompletionOpts) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{System: system, Turns: turns, Opts: opts})
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "Okay.", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeCompletion) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testEnv struct {
	db  *gorm.DB
	log *logger.Logger
	ai  *fakeCompletion

	userRepo    repos.UserRepo
	spaceRepo   repos.SpaceRepo
	convRepo    repos.ConversationRepo
	msgRepo     repos.MessageRepo
	profileRepo repos.ProfileRepo
	attemptRepo repos.QuizAttemptRepo
	runRepo     repos.ExtractionRunRepo
	eventRepo   repos.LearningEventRepo

	events     LearningEventService
	spaces     SpaceService
	convs      ConversationService
	tutor      TutorService
	quizzes    QuizService
	profiles   ProfileService
	extraction ExtractionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))

	log := logger.NewNop()
	env := &testEnv{
		db:  gdb,
		log: log,
		ai:  &fakeCompletion{},

		userRepo:    repos.NewUserRepo(gdb, log),
		spaceRepo:   repos.NewSpaceRepo(gdb, log),
		convRepo:    repos.NewConversationRepo(gdb, log),
		msgRepo:     repos.NewMessageRepo(gdb, log),
		profileRepo: repos.NewProfileRepo(gdb, log),
		attemptRepo: repos.NewQuizAttemptRepo(gdb, log),
		runRepo:     repos.NewExtractionRunRepo(gdb, log),
		eventRepo:   repos.NewLearningEventRepo(gdb, log),
	}

	env.events = NewLearningEventService(gdb, log, env.eventRepo, nil)
	env.spaces = NewSpaceService(gdb, log, env.spaceRepo)
	env.convs = NewConversationService(gdb, log, env.spaceRepo, env.convRepo, env.msgRepo, env.runRepo, env.events)
	env.tutor = NewTutorService(gdb, log, env.spaceRepo, env.convRepo, env.msgRepo, env.profileRepo, env.events, env.ai)
	env.quizzes = NewQuizService(gdb, log, env.spaceRepo, env.convRepo, env.msgRepo, env.attemptRepo, env.events)
	env.profiles = NewProfileService(gdb, log, env.profileRepo)
	env.extraction = NewExtractionService(gdb, log, env.spaceRepo, env.convRepo, env.msgRepo, env.profileRepo, env.attemptRepo, env.runRepo, env.events, env.ai)

	return env
}

func (e *testEnv) createUser(t *testing.T) *types.User {
	t.Helper()
	now := time.Now()
	user := &types.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Password:  "hashed",
		Name:      "Test Learner",
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := e.userRepo.Create(context.Background(), nil, user)
	require.NoError(t, err)
	return created
}

func (e *testEnv) createSpace(t *testing.T, userID uuid.UUID, topic string) *types.LearningSpace {
	t.Helper()
	space, err := e.spaces.Create(context.Background(), userID, topic+" space", topic, "get comfortable with "+topic)
	require.NoError(t, err)
	return space
}

func (e *testEnv) startConversation(t *testing.T, userID, spaceID uuid.UUID) *types.Conversation {
	t.Helper()
	conv, err := e.convs.Create(context.Background(), userID, spaceID)
	require.NoError(t, err)
	return conv
}

// eventTypes returns the user's event log types oldest first.
func (e *testEnv) eventTypes(t *testing.T, userID uuid.UUID) []string {
	t.Helper()
	events, err := e.events.ListForUser(context.Background(), userID, 100)
	require.NoError(t, err)
	out := make([]string, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i].Type)
	}
	return out
}

// eventData returns the payload of the user's first event of the given
// type, failing the test when none exists.
func (e *testEnv) eventData(t *testing.T, userID uuid.UUID, eventType string) map[string]any {
	t.Helper()
	events, err := e.events.ListForUser(context.Background(), userID, 500)
	require.NoError(t, err)
	for _, evt := range events {
		if evt.Type != eventType {
			continue
		}
		var data map[string]any
		require.NoError(t, json.Unmarshal(evt.Data, &data))
		return data
	}
	t.Fatalf("no %s event for user %s", eventType, userID)
	return nil
}

func countType(eventTypes []string, want string) int {
	n := 0
	for _, et := range eventTypes {
		if et == want {
			n++
		}
	}
	return n
}
