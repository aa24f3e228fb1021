package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lumalearn/luma-backend/internal/types"
)

func msg(role, content string) *types.Message {
	return &types.Message{ID: uuid.New(), Role: role, Content: content}
}

func TestBuildPromptSectionsAndSpaceContext(t *testing.T) {
	space := &types.LearningSpace{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Topic:  "calculus",
		Goal:   "pass the midterm",
	}
	out := BuildPrompt(PromptInput{
		Space: space,
		Tail:  []*types.Message{msg(types.RoleUser, "what is a derivative?")},
	}, DefaultPromptConfig())

	require.Contains(t, out, "Topic: calculus")
	require.Contains(t, out, "Goal: pass the midterm")
	require.Contains(t, out, "(New learner, no profile yet)")
	require.Contains(t, out, "User: what is a derivative?")
	require.Contains(t, out, "(No quizzes yet)")
	require.Contains(t, out, "<learning_context>")
	require.Contains(t, out, "</learning_context>")
	// The persona and quiz format instructions lead the prompt.
	require.True(t, strings.HasPrefix(out, "You are Luma"))
	require.Contains(t, out, "<quiz>")
}

func TestBuildPromptNilProfileAndEmptyTail(t *testing.T) {
	out := BuildPrompt(PromptInput{}, DefaultPromptConfig())
	require.Contains(t, out, "(New learner, no profile yet)")
	require.Contains(t, out, "(No previous messages)")
	require.Contains(t, out, "Goal: Explore and understand the topic")
}

func TestBuildPromptProfileSlice(t *testing.T) {
	level := 4
	profile := types.NewEmptyProfile(uuid.New())
	profile.Goals = "become employable"
	profile.Background = "self taught"
	profile.CurrentTopic = "recursion"
	profile.SetTopicMap(map[string]types.TopicState{
		"recursion": {LastSeen: time.Now(), Comprehension: &level},
		"loops":     {LastSeen: time.Now().Add(-time.Hour)},
	})
	profile.SetOpenQuestionList([]string{"why does base case matter"})
	profile.SetObservationList([]string{"prefers worked examples"})

	out := BuildPrompt(PromptInput{Profile: profile}, DefaultPromptConfig())
	require.Contains(t, out, "Goals: become employable")
	require.Contains(t, out, "Background: self taught")
	require.Contains(t, out, "Current topic: recursion")
	require.Contains(t, out, "Recent topics: recursion (comprehension 4/5), loops")
	require.Contains(t, out, "Open questions from last session: why does base case matter")
	require.Contains(t, out, "Learning style: prefers worked examples")
}

func TestBuildPromptTopicWindowBounded(t *testing.T) {
	profile := types.NewEmptyProfile(uuid.New())
	topics := map[string]types.TopicState{}
	base := time.Now()
	for i := 0; i < 15; i++ {
		topics[fmt.Sprintf("topic-%02d", i)] = types.TopicState{LastSeen: base.Add(time.Duration(i) * time.Minute)}
	}
	profile.SetTopicMap(topics)

	out := BuildPrompt(PromptInput{Profile: profile}, DefaultPromptConfig())
	// Newest ten survive; the five oldest fall off.
	require.Contains(t, out, "topic-14")
	require.Contains(t, out, "topic-05")
	require.NotContains(t, out, "topic-04")
}

func TestBuildPromptTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("x", 800)
	out := BuildPrompt(PromptInput{
		Tail: []*types.Message{msg(types.RoleUser, long)},
	}, DefaultPromptConfig())
	require.Contains(t, out, strings.Repeat("x", 500)+"...")
	require.NotContains(t, out, strings.Repeat("x", 501))
}

func TestTrimTailKeepsNewestAndLastUserTurn(t *testing.T) {
	var tail []*types.Message
	for i := 0; i < 25; i++ {
		role := types.RoleAssistant
		if i%2 == 0 {
			role = types.RoleUser
		}
		tail = append(tail, msg(role, fmt.Sprintf("m%d", i)))
	}

	kept := TrimTail(tail, 20)
	require.Len(t, kept, 20)
	// Oldest five dropped, newest retained in order.
	require.Equal(t, "m5", kept[0].Content)
	require.Equal(t, "m24", kept[len(kept)-1].Content)
}

func TestTrimTailNeverDropsMostRecentUserTurn(t *testing.T) {
	// One user turn buried at the front of a long assistant run.
	tail := []*types.Message{msg(types.RoleUser, "the question")}
	for i := 0; i < 10; i++ {
		tail = append(tail, msg(types.RoleAssistant, fmt.Sprintf("a%d", i)))
	}

	kept := TrimTail(tail, 5)
	require.Len(t, kept, 5)
	require.Equal(t, "the question", kept[0].Content)
}

func TestBuildPromptQuizSummaryWindow(t *testing.T) {
	completed := func(correct bool) *types.QuizPayload {
		p := &types.QuizPayload{
			Type:      types.PayloadTypeQuiz,
			Status:    types.QuizStatusCompleted,
			Questions: []types.QuizQuestion{{ID: "1", Text: "q", Type: types.QuestionTypeMCQ}},
			Responses: []types.QuizResponse{{QuestionID: "1", UserAnswer: "A", IsCorrect: correct}},
		}
		return p
	}
	pending := &types.QuizPayload{
		Type:      types.PayloadTypeQuiz,
		Status:    types.QuizStatusPending,
		Questions: []types.QuizQuestion{{ID: "1", Text: "q"}, {ID: "2", Text: "q"}},
	}

	out := BuildPrompt(PromptInput{
		QuizHistory: []*types.QuizPayload{completed(true), completed(true), completed(false), pending},
	}, DefaultPromptConfig())

	// Only the last three summaries appear.
	require.Equal(t, 2, strings.Count(out, "- Quiz:")-strings.Count(out, "- Quiz: pending")) // two completed in window
	require.Contains(t, out, "- Quiz: pending, 2 questions")
	require.Contains(t, out, "- Quiz: 0/1 correct")
}
