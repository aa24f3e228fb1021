// Package quiz implements the checkpoint-quiz wire format and its
// pending -> completed lifecycle. Tutor replies may embed a delimited
// quiz block; it is parsed once, at persistence time, into the typed
// payload stored on the assistant message.
package quiz

import (
	"regexp"
	"strings"

	"github.com/lumalearn/luma-backend/internal/types"
)

// Wire format produced by the tutor:
//
//	<quiz>
//	<question id="1">
//	What would happen to X if Y changed?
//	<options>
//	A. First option
//	B. Second option
//	</options>
//	<answer>B</answer>
//	</question>
//	</quiz>
//
// The answer key stays server-side; Redacted() strips it before rendering.
var (
	quizBlockRe = regexp.MustCompile(`(?s)<quiz>(.*?)</quiz>`)
	questionRe  = regexp.MustCompile(`(?s)<question id="(\d+)">(.*?)</question>`)
	optionsRe   = regexp.MustCompile(`(?s)<options>(.*?)</options>`)
	answerRe    = regexp.MustCompile(`<answer>(.*?)</answer>`)
)

// Parse scans completion-service output for an embedded quiz block.
// The text is untrusted: malformed or empty blocks yield (nil, false)
// rather than an error, and the turn proceeds as plain content.
func Parse(content string) (*types.QuizPayload, bool) {
	block := quizBlockRe.FindStringSubmatch(content)
	if block == nil {
		return nil, false
	}

	var questions []types.QuizQuestion
	for _, qm := range questionRe.FindAllStringSubmatch(block[1], -1) {
		id, body := qm[1], qm[2]

		text := body
		if idx := strings.Index(body, "<options>"); idx >= 0 {
			text = body[:idx]
		} else if idx := strings.Index(body, "<answer>"); idx >= 0 {
			text = body[:idx]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		var options []string
		if om := optionsRe.FindStringSubmatch(body); om != nil {
			for _, line := range strings.Split(om[1], "\n") {
				if line = strings.TrimSpace(line); line != "" {
					options = append(options, line)
				}
			}
		}

		answer := ""
		if am := answerRe.FindStringSubmatch(body); am != nil {
			answer = strings.TrimSpace(am[1])
		}

		qType := types.QuestionTypeShortResponse
		if len(options) > 0 {
			qType = types.QuestionTypeMCQ
		}

		questions = append(questions, types.QuizQuestion{
			ID:            "q" + id,
			Text:          text,
			Type:          qType,
			Options:       options,
			CorrectAnswer: answer,
		})
	}

	if len(questions) == 0 {
		return nil, false
	}

	return &types.QuizPayload{
		Type:      types.PayloadTypeQuiz,
		Questions: questions,
		Status:    types.QuizStatusPending,
		Responses: []types.QuizResponse{},
	}, true
}

// StripBlock removes the quiz markup from reader-facing content so the
// answer key never reaches the client through the raw message text.
func StripBlock(content string) string {
	return strings.TrimSpace(quizBlockRe.ReplaceAllString(content, ""))
}
