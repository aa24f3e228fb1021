package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lumalearn/luma-backend/internal/types"
)

const tutorSystemPrompt = `You are Luma, an AI tutor. Your job is to help the user genuinely understand
the topic they are learning, not just hand them answers.

## How You Behave

**You teach through dialogue, not lectures.**
- Ask questions to find out what they already know
- Explain a concept, then check understanding
- Use analogies and worked examples
- When they are confused, try a different angle instead of repeating yourself

**You keep them thinking.**
- Ask "why do you think that?" before confirming
- Have them explain ideas back to you
- Challenge assumptions: "what would happen if...?"
- Praise effort and good reasoning, not just correct answers

**You validate understanding with checkpoint quizzes.**
- After covering 2-3 concepts, check whether it stuck
- Say "Let me see if this is solid" and ask 2-4 questions
- Questions should test understanding, not recall
- Based on the results: move on, or reteach differently

**You adapt.**
- Notice struggling versus breezing through, and adjust depth and pace
- Keep the learning goal in mind; tangents are fine when they help

## Quiz Format

When you quiz, use exactly this format so the system can parse it:

<quiz>
<question id="1">
What would happen to X if Y changed?
<options>
A. First option
B. Second option
C. Third option
D. Fourth option
</options>
<answer>B</answer>
</question>
</quiz>

Omit the <options> block for short-response questions. After they answer,
either confirm understanding and move on, or identify the gap and reteach
with a different approach.

## What NOT To Do

- Do not lecture for paragraphs without engagement
- Do not accept "I get it" without demonstration
- Do not repeat an explanation that already failed
- Do not be condescending or artificially cheerful
- Do not skip foundations to get to the "interesting" parts

Your success is measured by whether they actually understand, not by how
much you covered.`

// PromptConfig bounds how much context a single turn may carry.
type PromptConfig struct {
	MaxTailMessages int // last K messages of the conversation
	MaxTopics       int // most recently seen topics from the profile
	MaxContentChars int // per-message truncation inside the context block
	MaxQuizzes      int // quiz summaries from the current session
}

func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		MaxTailMessages: 20,
		MaxTopics:       10,
		MaxContentChars: 500,
		MaxQuizzes:      3,
	}
}

// PromptInput is everything a turn's prompt is assembled from.
type PromptInput struct {
	Profile     *types.LearnerProfile
	Space       *types.LearningSpace
	Tail        []*types.Message
	QuizHistory []*types.QuizPayload
}

// BuildPrompt assembles the per-turn system prompt. Pure function: no
// side effects, stable section order. A nil profile is replaced with an
// empty one so the first session degrades gracefully.
func BuildPrompt(in PromptInput, cfg PromptConfig) string {
	profile := in.Profile
	if profile == nil {
		userID := uuid.Nil
		if in.Space != nil {
			userID = in.Space.UserID
		}
		profile = types.NewEmptyProfile(userID)
	}

	topic, goal := "", ""
	if in.Space != nil {
		topic = in.Space.Topic
		goal = in.Space.Goal
	}
	if goal == "" {
		goal = "Explore and understand the topic"
	}

	var b strings.Builder
	b.WriteString(tutorSystemPrompt)
	b.WriteString("\n\n<learning_context>\n")
	fmt.Fprintf(&b, "Topic: %s\nGoal: %s\n", topic, goal)

	b.WriteString("\nAbout this learner:\n")
	b.WriteString(formatProfileSlice(profile, cfg))

	b.WriteString("\nRecent conversation:\n")
	b.WriteString(formatTail(TrimTail(in.Tail, cfg.MaxTailMessages), cfg.MaxContentChars))

	b.WriteString("\nQuiz history this session:\n")
	b.WriteString(formatQuizSummary(in.QuizHistory, cfg.MaxQuizzes))

	b.WriteString("\n</learning_context>\n\nContinue the tutoring session. Remember where you left off.\n")
	return b.String()
}

// TrimTail applies the turn budget: keep the newest `limit` messages,
// dropping the oldest non-system messages first and never dropping the
// most recent user turn.
func TrimTail(tail []*types.Message, limit int) []*types.Message {
	if limit <= 0 || len(tail) <= limit {
		return tail
	}

	var lastUser *types.Message
	for i := len(tail) - 1; i >= 0; i-- {
		if tail[i].Role == types.RoleUser {
			lastUser = tail[i]
			break
		}
	}

	// Walk oldest-first, dropping non-system messages until within budget.
	drop := len(tail) - limit
	kept := make([]*types.Message, 0, limit)
	for _, m := range tail {
		if drop > 0 && m.Role != types.RoleSystem && m != lastUser {
			drop--
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func formatProfileSlice(p *types.LearnerProfile, cfg PromptConfig) string {
	var lines []string
	if p.Goals != "" {
		lines = append(lines, "Goals: "+p.Goals)
	}
	if p.Background != "" {
		lines = append(lines, "Background: "+p.Background)
	}
	if p.CurrentTopic != "" {
		lines = append(lines, "Current topic: "+p.CurrentTopic)
	}

	if topics := recentTopics(p.TopicMap(), cfg.MaxTopics); len(topics) > 0 {
		lines = append(lines, "Recent topics: "+strings.Join(topics, ", "))
	}
	if qs := p.OpenQuestionList(); len(qs) > 0 {
		lines = append(lines, "Open questions from last session: "+strings.Join(qs, "; "))
	}
	if obs := p.ObservationList(); len(obs) > 0 {
		lines = append(lines, "Learning style: "+strings.Join(obs, "; "))
	}

	if len(lines) == 0 {
		return "(New learner, no profile yet)\n"
	}
	return strings.Join(lines, "\n") + "\n"
}

// recentTopics returns up to max topic names ordered by last_seen
// descending, with the comprehension level when known.
func recentTopics(topics map[string]types.TopicState, max int) []string {
	type entry struct {
		name  string
		state types.TopicState
	}
	entries := make([]entry, 0, len(topics))
	for name, state := range topics {
		entries = append(entries, entry{name: name, state: state})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].state.LastSeen.Equal(entries[j].state.LastSeen) {
			return entries[i].name < entries[j].name
		}
		return entries[i].state.LastSeen.After(entries[j].state.LastSeen)
	})
	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.state.Comprehension != nil {
			out = append(out, fmt.Sprintf("%s (comprehension %d/5)", e.name, *e.state.Comprehension))
		} else {
			out = append(out, e.name)
		}
	}
	return out
}

func formatTail(tail []*types.Message, maxChars int) string {
	if len(tail) == 0 {
		return "(No previous messages)\n"
	}
	var lines []string
	for _, m := range tail {
		role := "Tutor"
		if m.Role == types.RoleUser {
			role = "User"
		} else if m.Role == types.RoleSystem {
			role = "System"
		}
		content := m.Content
		if maxChars > 0 && len(content) > maxChars {
			content = content[:maxChars] + "..."
		}
		lines = append(lines, role+": "+content)
	}
	return strings.Join(lines, "\n") + "\n"
}

func formatQuizSummary(history []*types.QuizPayload, max int) string {
	if len(history) == 0 {
		return "(No quizzes yet)\n"
	}
	if max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	var lines []string
	for _, q := range history {
		if q == nil {
			continue
		}
		if !q.Completed() {
			lines = append(lines, fmt.Sprintf("- Quiz: pending, %d questions", len(q.Questions)))
			continue
		}
		correct, total := q.CorrectCount()
		lines = append(lines, fmt.Sprintf("- Quiz: %d/%d correct", correct, total))
	}
	if len(lines) == 0 {
		return "(No quizzes yet)\n"
	}
	return strings.Join(lines, "\n") + "\n"
}
