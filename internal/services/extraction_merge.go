package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumalearn/luma-backend/internal/types"
)

// extractionResult is the structured output of the analysis completion
// call. The model's output is untrusted: parseExtractionResult validates
// it before anything touches the profile.
type extractionResult struct {
	Synopsis        string                `json:"synopsis"`
	Mood            string                `json:"mood"`
	TopicsDiscussed []string              `json:"topics_discussed"`
	Topics          []extractedTopic      `json:"topics"`
	Observations    []string              `json:"observations"`
	OpenQuestions   []string              `json:"open_questions"`
	CurrentTopic    string                `json:"current_topic"`
	Assessments     []extractedAssessment `json:"assessments"`
	Flags           boundaryFlags         `json:"flags"`
}

type extractedTopic struct {
	Name          string    `json:"name"`
	Comprehension *int      `json:"comprehension,omitempty"`
	Note          string    `json:"note,omitempty"`
	QuizScores    []float64 `json:"quiz_scores,omitempty"`
	Quizzed       bool      `json:"quizzed"`
}

type extractedAssessment struct {
	Topic      string `json:"topic"`
	Question   string `json:"question"`
	UserAnswer string `json:"user_answer"`
	Correct    bool   `json:"correct"`
}

// boundaryFlags are conservative, false-biased signals derived from the
// transcript.
type boundaryFlags struct {
	Frustration       bool `json:"frustration"`
	Struggle          bool `json:"struggle"`
	Breakthrough      bool `json:"breakthrough"`
	PracticeRequested bool `json:"practice_requested"`
}

var validMoods = map[string]bool{
	types.MoodEngaged:    true,
	types.MoodFrustrated: true,
	types.MoodConfused:   true,
	types.MoodConfident:  true,
	types.MoodNeutral:    true,
}

// parseExtractionResult decodes the completion output, tolerating a
// markdown code fence around the JSON but nothing else.
func parseExtractionResult(raw string) (*extractionResult, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var res extractionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode extraction output: %w", err)
	}

	if !validMoods[res.Mood] {
		res.Mood = types.MoodNeutral
	}
	for i, t := range res.Topics {
		if t.Comprehension != nil && (*t.Comprehension < 1 || *t.Comprehension > 5) {
			res.Topics[i].Comprehension = nil
		}
		for j, score := range t.QuizScores {
			if score < 0 {
				res.Topics[i].QuizScores[j] = 0
			} else if score > 1 {
				res.Topics[i].QuizScores[j] = 1
			}
		}
	}
	return &res, nil
}

// normalizeTopicKey folds case and whitespace so "Chain Rule" and
// "chain  rule" land on the same topic-state key.
func normalizeTopicKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

type topicChange struct {
	Topic string
	IsNew bool
	// Prior and New track the comprehension transition when one happened.
	Prior *int
	New   *int
}

// mergeOutcome reports what a delta application changed, for event emission.
type mergeOutcome struct {
	TopicChanges []topicChange
}

// applyDelta merges one session's delta into the profile in memory.
// Field-scoped on purpose: the topic map is merged key by key, the
// observation list appended with duplicates skipped, recent sessions
// prepended and truncated. Deltas from sessions touching disjoint topic
// sets therefore commute.
func applyDelta(p *types.LearnerProfile, d *types.ProfileDelta) mergeOutcome {
	var out mergeOutcome

	topics := p.TopicMap()
	for rawName, td := range d.Topics {
		key := normalizeTopicKey(rawName)
		if key == "" {
			continue
		}

		state, exists := topics[key]
		change := topicChange{Topic: key, IsNew: !exists}
		if !exists {
			state = types.TopicState{FirstSeen: td.SeenAt}
		} else {
			change.Prior = state.Comprehension
		}

		state.LastSeen = td.SeenAt
		state.SessionsCount++
		state.QuizScores = append(state.QuizScores, td.QuizScores...)
		if td.Quizzed || len(td.QuizScores) > 0 {
			quizzedAt := td.SeenAt
			state.LastQuizzedAt = &quizzedAt
		}

		if td.Comprehension != nil {
			newLevel := *td.Comprehension
			note := td.Notes
			// A lower level never lands silently: it must carry a note
			// explaining the regression.
			if state.Comprehension != nil && newLevel < *state.Comprehension && strings.TrimSpace(note) == "" {
				note = fmt.Sprintf("comprehension revised down from %d this session", *state.Comprehension)
			}
			state.Comprehension = &newLevel
			if note != "" {
				state.Notes = note
			}
			change.New = &newLevel
		} else if td.Notes != "" {
			state.Notes = td.Notes
		}

		topics[key] = state
		out.TopicChanges = append(out.TopicChanges, change)
	}
	p.SetTopicMap(topics)

	if len(d.Observations) > 0 {
		existing := p.ObservationList()
		seen := make(map[string]bool, len(existing))
		for _, o := range existing {
			seen[normalizeObservation(o)] = true
		}
		for _, o := range d.Observations {
			if o = strings.TrimSpace(o); o == "" || seen[normalizeObservation(o)] {
				continue
			}
			existing = append(existing, o)
			seen[normalizeObservation(o)] = true
		}
		p.SetObservationList(existing)
	}

	// Open questions and current topic are recomputed per session, not
	// accumulated: they are continuity hints for the next session.
	p.SetOpenQuestionList(d.OpenQuestions)
	if d.CurrentTopic != "" {
		p.CurrentTopic = normalizeTopicKey(d.CurrentTopic)
	}

	recents := append([]types.SessionSummary{d.Summary}, p.RecentSessionList()...)
	if len(recents) > types.MaxRecentSessions {
		recents = recents[:types.MaxRecentSessions]
	}
	p.SetRecentSessionList(recents)

	last := d.LastSessionAt
	if p.LastSessionAt == nil || last.After(*p.LastSessionAt) {
		p.LastSessionAt = &last
	}

	return out
}

func normalizeObservation(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
