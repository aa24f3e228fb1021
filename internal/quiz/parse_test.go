package quiz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumalearn/luma-backend/internal/types"
)

const sampleQuizReply = `Good progress so far. Let me see if this is solid.

<quiz>
<question id="1">
What is the derivative of sin(x)?
<options>
A. cos(x)
B. -cos(x)
C. -sin(x)
D. tan(x)
</options>
<answer>A</answer>
</question>
<question id="2">
In one sentence, why does the chain rule apply to composed functions?
<answer>because the inner function's rate of change scales the outer one</answer>
</question>
</quiz>

Take your time.`

func TestParseQuizBlock(t *testing.T) {
	p, ok := Parse(sampleQuizReply)
	require.True(t, ok)
	require.Equal(t, types.PayloadTypeQuiz, p.Type)
	require.Equal(t, types.QuizStatusPending, p.Status)
	require.Empty(t, p.Responses)
	require.Len(t, p.Questions, 2)

	q1 := p.Questions[0]
	require.Equal(t, "q1", q1.ID)
	require.Equal(t, "What is the derivative of sin(x)?", q1.Text)
	require.Equal(t, types.QuestionTypeMCQ, q1.Type)
	require.Equal(t, []string{"A. cos(x)", "B. -cos(x)", "C. -sin(x)", "D. tan(x)"}, q1.Options)
	require.Equal(t, "A", q1.CorrectAnswer)

	q2 := p.Questions[1]
	require.Equal(t, "q2", q2.ID)
	require.Equal(t, types.QuestionTypeShortResponse, q2.Type)
	require.Empty(t, q2.Options)
}

func TestParseRejectsPlainAndMalformedContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{name: "plain_text", content: "The chain rule lets you differentiate composed functions."},
		{name: "unclosed_block", content: "<quiz><question id=\"1\">What is X?"},
		{name: "empty_block", content: "<quiz></quiz>"},
		{name: "question_without_text", content: "<quiz><question id=\"1\"><answer>A</answer></question></quiz>"},
		{name: "empty_string", content: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := Parse(tc.content)
			require.False(t, ok)
			require.Nil(t, p)
		})
	}
}

func TestStripBlockRemovesAnswerKey(t *testing.T) {
	stripped := StripBlock(sampleQuizReply)
	require.NotContains(t, stripped, "<quiz>")
	require.NotContains(t, stripped, "<answer>")
	require.Contains(t, stripped, "Good progress so far.")
	require.Contains(t, stripped, "Take your time.")
}

func TestRedactedStripsCorrectAnswers(t *testing.T) {
	p, ok := Parse(sampleQuizReply)
	require.True(t, ok)

	red := p.Redacted()
	for _, q := range red.Questions {
		require.Empty(t, q.CorrectAnswer)
	}
	// original untouched
	require.Equal(t, "A", p.Questions[0].CorrectAnswer)
}
