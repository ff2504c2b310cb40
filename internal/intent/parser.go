package intent

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/khushidubeyokok/AMD/internal/voice"
)

// Mode tells the parser which flow the learner is in. It only influences
// tie-breaks; the keyword sets themselves are fixed.
type Mode int

const (
	ModeDashboard Mode = iota
	ModeLesson
	ModeAssessment
	ModeProgress
)

// Context carries the per-call parsing inputs.
type Context struct {
	Mode     Mode
	Subjects []string
}

// Options configures parser policy.
type Options struct {
	// StrictOptions makes an "option"/"choice" utterance without a number
	// parse as Unrecognized instead of defaulting to the first option.
	StrictOptions bool
}

// Parser maps a normalized utterance to a Command. Matching is
// case-insensitive and keyword based; precedence when several keyword sets
// match is control > navigation > assessment answers > subject names.
type Parser struct {
	opts    Options
	aliases map[string]string
}

func NewParser(opts Options) *Parser {
	return &Parser{
		opts: opts,
		aliases: map[string]string{
			"math":   "Mathematics",
			"maths":  "Mathematics",
			"social": "Social Studies",
		},
	}
}

// Parse classifies one utterance. It is a pure function of its inputs.
func (p *Parser) Parse(u voice.Utterance, ctx Context) Command {
	text := strings.ToLower(strings.TrimSpace(u.Text))
	if text == "" {
		return Command{Kind: Unrecognized, Raw: u.Text}
	}
	has := func(phrases ...string) bool {
		for _, ph := range phrases {
			if strings.Contains(text, ph) {
				return true
			}
		}
		return false
	}

	// Control commands win over everything else.
	switch {
	case has("stop listening", "stop voice"):
		return Command{Kind: StopListening, Confidence: 1}
	case has("start listening", "start voice"):
		return Command{Kind: StartListening, Confidence: 1}
	case has("stop speaking", "stop talking"):
		return Command{Kind: StopSpeaking, Confidence: 1}
	case has("help", "what can i do"):
		return Command{Kind: Help, Confidence: 1}
	case has("repeat", "say again"):
		return Command{Kind: Repeat, Confidence: 1}
	}

	// Navigation and flow commands. Longer phrases are checked before their
	// substrings so "next question" never parses as "next".
	switch {
	case has("next question"):
		return Command{Kind: NextQuestion, Confidence: 1}
	case has("previous question"):
		return Command{Kind: PreviousQuestion, Confidence: 1}
	case has("start learning", "begin learning"):
		return Command{Kind: StartLearning, Confidence: 1}
	case has("continue learning", "resume"):
		return Command{Kind: ContinueLearning, Confidence: 1}
	case has("start assessment", "begin test"):
		return Command{Kind: StartAssessment, Confidence: 1}
	case has("start over", "restart"):
		return Command{Kind: Restart, Confidence: 1}
	case has("try again", "retry"):
		return Command{Kind: Retry, Confidence: 1}
	case has("next section", "next"):
		return Command{Kind: NextSection, Confidence: 1}
	case has("previous section", "back section", "previous"):
		return Command{Kind: PreviousSection, Confidence: 1}
	case has("go to dashboard", "dashboard"):
		return Command{Kind: Navigate, Page: "dashboard", Confidence: 1}
	case has("show progress", "my progress"):
		return Command{Kind: ShowProgress, Confidence: 1}
	case has("go to progress", "progress"):
		return Command{Kind: Navigate, Page: "progress", Confidence: 1}
	case has("go back", "back"):
		return Command{Kind: Navigate, Direction: "back", Confidence: 1}
	case has("explain", "what does this mean"):
		return Command{Kind: Explain, Confidence: 1}
	case has("mark complete", "done"):
		return Command{Kind: MarkComplete, Confidence: 1}
	case has("finish", "complete"):
		return Command{Kind: Finish, Confidence: 1}
	case has("ask question", "have a doubt"):
		return Command{Kind: AskQuestion, Confidence: 1}
	case has("show stats", "statistics"):
		return Command{Kind: ShowStats, Confidence: 1}
	case has("this week", "weekly"):
		return Command{Kind: SetTimeframe, Timeframe: "week", Confidence: 1}
	case has("this month", "monthly"):
		return Command{Kind: SetTimeframe, Timeframe: "month", Confidence: 1}
	case has("all time", "overall"):
		return Command{Kind: SetTimeframe, Timeframe: "all", Confidence: 1}
	}

	// Assessment answers. "true" wins when both keywords are present, a
	// deliberate tie-break for deterministic behavior.
	if has("true") {
		v := true
		return Command{Kind: SelectOption, Boolean: &v, Confidence: 1}
	}
	if has("false") {
		v := false
		return Command{Kind: SelectOption, Boolean: &v, Confidence: 1}
	}
	if has("option", "choice") {
		if n, ok := firstInt(text); ok && n > 0 {
			return Command{Kind: SelectOption, OptionIndex: n - 1, Confidence: 1}
		}
		if p.opts.StrictOptions {
			return Command{Kind: Unrecognized, Raw: u.Text}
		}
		// No usable number: fall back to the first option, low confidence.
		return Command{Kind: SelectOption, OptionIndex: 0, Confidence: 0.3}
	}

	// Subject names, longest keyword first so "social studies" is never
	// shadowed by a shorter token inside it.
	if subject, ok := p.matchSubject(text, ctx.Subjects); ok {
		return Command{Kind: SelectSubject, Subject: subject, Confidence: 1}
	}

	return Command{Kind: Unrecognized, Raw: u.Text}
}

func (p *Parser) matchSubject(text string, subjects []string) (string, bool) {
	type cand struct {
		keyword string
		subject string
	}
	var cands []cand
	for _, s := range subjects {
		cands = append(cands, cand{keyword: strings.ToLower(s), subject: s})
	}
	for alias, canonical := range p.aliases {
		cands = append(cands, cand{keyword: alias, subject: canonical})
	}
	sort.Slice(cands, func(i, j int) bool {
		if len(cands[i].keyword) != len(cands[j].keyword) {
			return len(cands[i].keyword) > len(cands[j].keyword)
		}
		return cands[i].keyword < cands[j].keyword
	})
	for _, c := range cands {
		if strings.Contains(text, c.keyword) {
			return c.subject, true
		}
	}
	return "", false
}

// FirstInt extracts the first integer token from an utterance, used by the
// session to resolve free-text multiple-choice answers.
func FirstInt(text string) (int, bool) {
	return firstInt(strings.ToLower(text))
}

func firstInt(text string) (int, bool) {
	start := -1
	for i, r := range text {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(text[start:i])
			if err == nil {
				return n, true
			}
			start = -1
		}
	}
	if start >= 0 {
		if n, err := strconv.Atoi(text[start:]); err == nil {
			return n, true
		}
	}
	return 0, false
}
