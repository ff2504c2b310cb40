package session

import (
	"fmt"
	"strings"

	"github.com/khushidubeyokok/AMD/internal/content"
	"github.com/khushidubeyokok/AMD/internal/intent"
)

// scoreAnswer resolves the learner's answer for one question and judges it.
// The resolved answer text is what gets stored on the question, so multiple
// choice answers read as the chosen option rather than the raw utterance.
func scoreAnswer(q *content.Question, cmd intent.Command, raw string) (bool, string) {
	switch q.Kind {
	case content.MultipleChoice:
		idx := -1
		if cmd.Kind == intent.SelectOption && cmd.Boolean == nil {
			idx = cmd.OptionIndex
		} else if n, ok := intent.FirstInt(raw); ok {
			idx = n - 1
		}
		if idx >= 0 && idx < len(q.Options) {
			chosen := q.Options[idx]
			return chosen == q.CorrectAnswer, chosen
		}
		return false, strings.TrimSpace(raw)

	case content.TrueFalse:
		var saidTrue bool
		if cmd.Kind == intent.SelectOption && cmd.Boolean != nil {
			saidTrue = *cmd.Boolean
		} else {
			saidTrue = strings.Contains(strings.ToLower(raw), "true")
		}
		answer := "False"
		if saidTrue {
			answer = "True"
		}
		return strings.EqualFold(answer, q.CorrectAnswer), answer

	default:
		raw = strings.TrimSpace(raw)
		return fuzzyMatch(raw, q.CorrectAnswer), raw
	}
}

// fuzzyMatch judges an open-ended answer against the expected one. Lenient on
// purpose: speech transcripts carry filler words, so containment either way
// counts, and for multi-word expectations half the keywords suffice.
func fuzzyMatch(answer, correct string) bool {
	a := normalizeAnswer(answer)
	c := normalizeAnswer(correct)
	if a == "" || c == "" {
		return false
	}
	if strings.Contains(a, c) || strings.Contains(c, a) {
		return true
	}
	keywords := strings.Fields(c)
	if len(keywords) < 2 {
		return false
	}
	matched := 0
	for _, k := range keywords {
		if strings.Contains(a, k) {
			matched++
		}
	}
	return matched*2 >= len(keywords)
}

func normalizeAnswer(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func feedbackFor(q *content.Question, correct bool) string {
	if correct {
		return "Correct! " + q.Explanation
	}
	return fmt.Sprintf("Not quite right. The correct answer is %s. %s", q.CorrectAnswer, q.Explanation)
}

// helpFor lists the commands that make sense right now, phrased for speech.
func helpFor(p Phase) string {
	switch p {
	case PhaseLessonActive, PhaseLessonComplete:
		return "Here's what you can say: next section to move forward, previous section to go back, " +
			"repeat to hear this section again, explain for more detail, mark complete when you've finished a section, " +
			"start assessment to test yourself, or go back to leave the lesson."
	case PhaseAssessmentActive:
		return "Here's what you can say: answer with the option number, like option one or option two, " +
			"say true or false for true-false questions, or speak your answer for open questions. " +
			"Say repeat to hear the question again, or next question to skip."
	case PhaseAssessmentComplete:
		return "Here's what you can say: try again to retake the chapter, show progress to see how you're doing, " +
			"or go back to the dashboard."
	default:
		return "Here's what you can say: start learning to begin the lesson, continue learning to resume, " +
			"show progress to see your stats, or pick a subject like Science or Mathematics."
	}
}

func timeframeLabel(tf string) string {
	switch tf {
	case "week":
		return "this week"
	case "month":
		return "this month"
	case "all":
		return "all time"
	default:
		return "today"
	}
}
