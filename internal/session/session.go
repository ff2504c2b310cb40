package session

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khushidubeyokok/AMD/internal/content"
	"github.com/khushidubeyokok/AMD/internal/intent"
	"github.com/khushidubeyokok/AMD/internal/logger"
	"github.com/khushidubeyokok/AMD/internal/progress"
	"github.com/khushidubeyokok/AMD/internal/voice"
)

// Phase is the session's position in the tutoring flow.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseLessonActive
	PhaseLessonComplete
	PhaseAssessmentActive
	PhaseAssessmentComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseLessonActive:
		return "lesson_active"
	case PhaseLessonComplete:
		return "lesson_complete"
	case PhaseAssessmentActive:
		return "assessment_active"
	case PhaseAssessmentComplete:
		return "assessment_complete"
	default:
		return "not_started"
	}
}

// Speaker tags conversation log entries.
type Speaker string

const (
	SpeakerAI   Speaker = "ai"
	SpeakerUser Speaker = "user"
)

// Entry is one conversation log line. The log is append-only.
type Entry struct {
	ID      string
	Speaker Speaker
	Text    string
	At      time.Time
}

// Result is the outcome of a finished assessment.
type Result struct {
	Score   int
	Correct int
	Total   int
}

// DefaultPacingDelay separates answer feedback from the next question.
const DefaultPacingDelay = 2 * time.Second

// DefaultSubjects is what the parser matches subject names against when the
// host supplies nothing better.
var DefaultSubjects = []string{"Science", "Mathematics", "Social Studies", "English", "Hindi"}

// Config carries per-session settings.
type Config struct {
	Subject     string
	Chapter     string
	PacingDelay time.Duration
	Subjects    []string
}

// Voice is the subset of the speech channel the session drives.
type Voice interface {
	Speak(text string)
	StopSpeaking()
	StartListening() error
	StopListening() error
	State() voice.State
}

// Session drives one learner's pass through a chapter and its assessment.
// All command processing is strictly sequential: a busy flag queues at most
// one pending utterance instead of processing concurrently.
type Session struct {
	id      string
	cfg     Config
	voice   Voice
	parser  *intent.Parser
	tracker progress.Tracker
	log     *logger.Logger

	mu            sync.Mutex
	chapter       content.Chapter
	questions     []content.Question
	phase         Phase
	section       int
	question      int
	conversation  []Entry
	result        *Result
	lastAnnounced string
	seeded        bool // the lesson->assessment auto-transition fired
	pacing        *time.Timer
	closed        bool
	busy          bool
	pending       *voice.Utterance
}

// New validates content for the configured chapter and builds a session.
// Empty section or question lists are fatal to session start.
func New(cfg Config, v Voice, parser *intent.Parser, tracker progress.Tracker, source content.Source, log *logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if parser == nil {
		parser = intent.NewParser(intent.Options{})
	}
	if cfg.PacingDelay <= 0 {
		cfg.PacingDelay = DefaultPacingDelay
	}
	if len(cfg.Subjects) == 0 {
		cfg.Subjects = DefaultSubjects
	}
	ch, err := source.Chapter(cfg.Subject, cfg.Chapter)
	if err != nil {
		return nil, fmt.Errorf("%w: chapter %s/%s: %v", content.ErrUnavailable, cfg.Subject, cfg.Chapter, err)
	}
	qs, err := source.Questions(cfg.Subject, cfg.Chapter)
	if err != nil {
		return nil, fmt.Errorf("%w: questions %s/%s: %v", content.ErrUnavailable, cfg.Subject, cfg.Chapter, err)
	}
	if len(ch.Sections) == 0 || len(qs) == 0 {
		return nil, fmt.Errorf("%w: chapter %s/%s has no sections or questions", content.ErrUnavailable, cfg.Subject, cfg.Chapter)
	}
	return &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		voice:     v,
		parser:    parser,
		tracker:   tracker,
		log:       log.With("session", cfg.Subject+"/"+cfg.Chapter),
		chapter:   ch,
		questions: qs,
	}, nil
}

// Start announces the session welcome. Safe to call more than once; the
// per-session dedup keeps the welcome from repeating.
func (s *Session) Start() {
	msg := fmt.Sprintf("Welcome to %s, %s! Let's start learning about %s. I'll guide you through each section.",
		s.cfg.Subject, s.cfg.Chapter, s.chapter.Title)
	s.mu.Lock()
	if s.closed || msg == s.lastAnnounced {
		s.mu.Unlock()
		return
	}
	s.lastAnnounced = msg
	s.appendLocked(SpeakerAI, msg)
	s.mu.Unlock()
	s.voice.Speak(msg)
}

// HandleUtterance consumes one debounced utterance. Utterances observed while
// the channel is speaking are discarded so the engine never transcribes its
// own voice. When a command is still being handled, at most one utterance is
// queued; a newer one replaces it.
func (s *Session) HandleUtterance(u voice.Utterance) {
	if s.voice.State() == voice.StateSpeaking {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.busy {
		s.pending = &u
		s.mu.Unlock()
		return
	}
	s.busy = true
	s.mu.Unlock()

	s.process(u)
	for {
		s.mu.Lock()
		next := s.pending
		s.pending = nil
		if next == nil || s.closed {
			s.busy = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.process(*next)
	}
}

func (s *Session) process(u voice.Utterance) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.appendLocked(SpeakerUser, u.Text)
	mode := s.modeLocked()
	s.mu.Unlock()

	cmd := s.parser.Parse(u, intent.Context{Mode: mode, Subjects: s.cfg.Subjects})
	s.log.Debug("command", "kind", cmd.Kind.String(), "text", u.Text)

	reply, events := s.apply(cmd, u)
	for _, ev := range events {
		s.record(ev)
	}
	if reply == "" {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.appendLocked(SpeakerAI, reply)
	s.mu.Unlock()
	s.voice.Speak(reply)
}

func (s *Session) apply(cmd intent.Command, u voice.Utterance) (string, []progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Commands that behave the same in every phase.
	switch cmd.Kind {
	case intent.Help:
		return helpFor(s.phase), nil
	case intent.StopSpeaking:
		s.voice.StopSpeaking()
		return "", nil
	case intent.StopListening:
		_ = s.voice.StopListening()
		return "Okay, I've stopped listening. Tap the microphone when you want to talk again.", nil
	case intent.StartListening:
		_ = s.voice.StartListening()
		return "I'm listening.", nil
	case intent.Navigate:
		if cmd.Page != "" {
			return fmt.Sprintf("Navigating to %s.", cmd.Page), nil
		}
		return "Going back.", nil
	case intent.SelectSubject:
		return fmt.Sprintf("Opening %s lessons.", cmd.Subject), nil
	case intent.ShowProgress:
		return "Opening your learning progress.", nil
	case intent.ShowStats:
		return "Here are your learning statistics.", nil
	case intent.SetTimeframe:
		return fmt.Sprintf("Showing progress for %s.", timeframeLabel(cmd.Timeframe)), nil
	}

	switch s.phase {
	case PhaseNotStarted:
		return s.applyNotStartedLocked(cmd)
	case PhaseLessonActive, PhaseLessonComplete:
		return s.applyLessonLocked(cmd)
	case PhaseAssessmentActive:
		return s.applyAssessmentLocked(cmd, u)
	default:
		return s.applyFinishedLocked(cmd)
	}
}

func (s *Session) applyNotStartedLocked(cmd intent.Command) (string, []progress.Event) {
	switch cmd.Kind {
	case intent.StartLearning:
		s.phase = PhaseLessonActive
		sec := s.chapter.Sections[s.section]
		return fmt.Sprintf("Let's start with %s. %s", sec.Title, sec.Body), nil
	case intent.ContinueLearning:
		s.phase = PhaseLessonActive
		sec := s.chapter.Sections[s.section]
		return fmt.Sprintf("Continuing from where you left off. %s. %s", sec.Title, sec.Body), nil
	case intent.StartAssessment:
		s.seedAssessmentLocked()
		return "Assessment time! " + s.questionPromptLocked(), nil
	case intent.Repeat:
		if s.lastAnnounced != "" {
			return s.lastAnnounced, nil
		}
		return "Say start learning when you're ready.", nil
	default:
		return "Say start learning when you're ready, or ask for help to hear what you can do.", nil
	}
}

func (s *Session) applyLessonLocked(cmd intent.Command) (string, []progress.Event) {
	sections := s.chapter.Sections
	switch cmd.Kind {
	case intent.StartLearning, intent.ContinueLearning:
		sec := sections[s.section]
		return fmt.Sprintf("Let's continue with %s. %s", sec.Title, sec.Body), nil
	case intent.NextSection:
		if s.section < len(sections)-1 {
			s.section++
			sec := sections[s.section]
			return fmt.Sprintf("Moving to the next section: %s. %s", sec.Title, sec.Body), nil
		}
		return "You've completed all sections of this chapter! Would you like to take an assessment to test your understanding?", nil
	case intent.PreviousSection:
		if s.section > 0 {
			s.section--
			sec := sections[s.section]
			return fmt.Sprintf("Going back to: %s. %s", sec.Title, sec.Body), nil
		}
		return "This is the first section. You can say next to continue to the next part.", nil
	case intent.Repeat:
		sec := sections[s.section]
		return fmt.Sprintf("Let me repeat: %s. %s", sec.Title, sec.Body), nil
	case intent.Explain:
		sec := sections[s.section]
		if sec.Kind == content.SectionDiagram && sec.Description != "" {
			return fmt.Sprintf("Let me explain this diagram in detail: %s. This visual representation helps us understand %s.",
				sec.Description, sec.Title), nil
		}
		return fmt.Sprintf("Let me explain this in more detail: %s. This concept is important because it forms the foundation for understanding %s.",
			sec.Body, s.chapter.Title), nil
	case intent.MarkComplete, intent.Finish:
		return s.markCompleteLocked()
	case intent.AskQuestion:
		return "I'm here to help! What specific part would you like me to explain in more detail?", nil
	case intent.StartAssessment:
		s.seedAssessmentLocked()
		return "Assessment time! " + s.questionPromptLocked(), nil
	default:
		return "I understand. Let me know if you'd like me to explain something, move to the next section, or if you have any questions about this topic.", nil
	}
}

func (s *Session) markCompleteLocked() (string, []progress.Event) {
	s.chapter.Sections[s.section].Completed = true
	events := []progress.Event{{
		Subject:         s.cfg.Subject,
		Chapter:         s.cfg.Chapter,
		PercentComplete: s.lessonPercentLocked(),
		At:              time.Now(),
	}}

	all := true
	for _, sec := range s.chapter.Sections {
		if !sec.Completed {
			all = false
			break
		}
	}
	if !all {
		return "Great! I've marked this section as completed. You're making excellent progress!", events
	}
	if !s.seeded {
		// The single lesson-to-assessment auto-transition.
		s.seedAssessmentLocked()
		return "Excellent! You've completed all sections. Let's test your understanding with a quick assessment. " +
			s.questionPromptLocked(), events
	}
	s.phase = PhaseLessonComplete
	return "Great! I've marked this section as completed. Say start assessment when you want to try the questions again.", events
}

// lessonPercentLocked reports how much of the chapter's reading is done,
// counting completed sections rather than the cursor so out-of-order
// completion still reads correctly.
func (s *Session) lessonPercentLocked() int {
	done := 0
	for _, sec := range s.chapter.Sections {
		if sec.Completed {
			done++
		}
	}
	return roundPercent(done, len(s.chapter.Sections))
}

func (s *Session) seedAssessmentLocked() {
	s.seeded = true
	s.phase = PhaseAssessmentActive
	s.question = 0
	for i := range s.questions {
		s.questions[i].UserAnswer = ""
		s.questions[i].Outcome = content.ResultUnknown
	}
	s.result = nil
}

func (s *Session) applyAssessmentLocked(cmd intent.Command, u voice.Utterance) (string, []progress.Event) {
	switch cmd.Kind {
	case intent.Repeat:
		return s.questionPromptLocked(), nil
	case intent.StartAssessment:
		return s.questionPromptLocked(), nil
	case intent.NextQuestion:
		s.cancelPacingLocked()
		return s.advanceLocked()
	case intent.NextSection, intent.PreviousSection, intent.PreviousQuestion,
		intent.StartLearning, intent.ContinueLearning, intent.MarkComplete, intent.Finish:
		return "We're in the middle of an assessment. Answer the current question, or say next question to move on.", nil
	}

	// Everything else is an answer attempt: a parsed option command or free
	// text for open-ended questions.
	q := &s.questions[s.question]
	if q.Outcome != content.ResultUnknown {
		return "We've already answered this one. Say next question to continue.", nil
	}
	correct, userAnswer := scoreAnswer(q, cmd, u.Text)
	q.UserAnswer = userAnswer
	if correct {
		q.Outcome = content.ResultCorrect
	} else {
		q.Outcome = content.ResultIncorrect
	}
	events := []progress.Event{{
		Subject:         s.cfg.Subject,
		Chapter:         s.cfg.Chapter,
		PercentComplete: s.lessonPercentLocked(),
		At:              time.Now(),
	}}
	s.schedulePacingLocked()
	return feedbackFor(q, correct), events
}

// advanceLocked moves the assessment cursor or, at the final question,
// finishes the assessment.
func (s *Session) advanceLocked() (string, []progress.Event) {
	if s.question < len(s.questions)-1 {
		s.question++
		return s.questionPromptLocked(), nil
	}
	return s.completeAssessmentLocked()
}

func (s *Session) completeAssessmentLocked() (string, []progress.Event) {
	s.cancelPacingLocked()
	correct := 0
	for _, q := range s.questions {
		if q.Outcome == content.ResultCorrect {
			correct++
		}
	}
	score := roundPercent(correct, len(s.questions))
	s.result = &Result{Score: score, Correct: correct, Total: len(s.questions)}
	s.phase = PhaseAssessmentComplete

	events := []progress.Event{{
		Subject:         s.cfg.Subject,
		Chapter:         s.cfg.Chapter,
		PercentComplete: 100,
		Completed:       true,
		Score:           &score,
		At:              time.Now(),
	}}
	verdict := "Good effort! Keep practicing."
	if score >= 75 {
		verdict = "Excellent work!"
	}
	return fmt.Sprintf("Assessment completed! You scored %d%% (%d out of %d correct). %s",
		score, correct, len(s.questions), verdict), events
}

func (s *Session) applyFinishedLocked(cmd intent.Command) (string, []progress.Event) {
	switch cmd.Kind {
	case intent.Retry, intent.Restart:
		s.resetLocked()
		sec := s.chapter.Sections[0]
		return fmt.Sprintf("Let's go through the chapter again. %s. %s", sec.Title, sec.Body), nil
	case intent.Repeat:
		if s.result != nil {
			return fmt.Sprintf("You scored %d%% (%d out of %d correct).",
				s.result.Score, s.result.Correct, s.result.Total), nil
		}
		return "The assessment is finished.", nil
	default:
		return "The assessment is finished. Say try again to retake the chapter, or go back to the dashboard.", nil
	}
}

// resetLocked clears every completion flag and answer and returns the session
// to the first lesson section. The seeded flag stays set so the automatic
// lesson-to-assessment transition fires at most once per session.
func (s *Session) resetLocked() {
	s.cancelPacingLocked()
	for i := range s.chapter.Sections {
		s.chapter.Sections[i].Completed = false
	}
	for i := range s.questions {
		s.questions[i].UserAnswer = ""
		s.questions[i].Outcome = content.ResultUnknown
	}
	s.result = nil
	s.phase = PhaseLessonActive
	s.section = 0
	s.question = 0
}

func (s *Session) questionPromptLocked() string {
	q := s.questions[s.question]
	msg := fmt.Sprintf("Question %d: %s", s.question+1, q.Prompt)
	if len(q.Options) > 0 {
		parts := make([]string, len(q.Options))
		for i, opt := range q.Options {
			parts[i] = fmt.Sprintf("Option %d: %s", i+1, opt)
		}
		return msg + " " + strings.Join(parts, ". ") + "."
	}
	return msg + " Please provide a detailed explanation."
}

func (s *Session) schedulePacingLocked() {
	s.cancelPacingLocked()
	s.pacing = time.AfterFunc(s.cfg.PacingDelay, s.pacingFire)
}

func (s *Session) cancelPacingLocked() {
	if s.pacing != nil {
		s.pacing.Stop()
		s.pacing = nil
	}
}

// pacingFire advances to the next question after the feedback delay. A stale
// timer whose session has moved on does nothing.
func (s *Session) pacingFire() {
	s.mu.Lock()
	if s.closed || s.phase != PhaseAssessmentActive {
		s.mu.Unlock()
		return
	}
	s.pacing = nil
	reply, events := s.advanceLocked()
	if reply != "" {
		s.appendLocked(SpeakerAI, reply)
	}
	s.mu.Unlock()
	for _, ev := range events {
		s.record(ev)
	}
	if reply != "" {
		s.voice.Speak(reply)
	}
}

// Close tears the session down immediately: pending timers are cancelled and
// active speech is stopped. Used when the learner navigates away.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelPacingLocked()
	s.pending = nil
	s.mu.Unlock()
	s.voice.StopSpeaking()
}

func (s *Session) record(ev progress.Event) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Record(context.Background(), ev); err != nil {
		s.log.Warn("progress record failed", "err", err)
	}
}

func (s *Session) appendLocked(sp Speaker, text string) {
	at := time.Now()
	if n := len(s.conversation); n > 0 && at.Before(s.conversation[n-1].At) {
		at = s.conversation[n-1].At
	}
	s.conversation = append(s.conversation, Entry{
		ID:      uuid.NewString(),
		Speaker: sp,
		Text:    text,
		At:      at,
	})
}

func (s *Session) modeLocked() intent.Mode {
	switch s.phase {
	case PhaseAssessmentActive, PhaseAssessmentComplete:
		return intent.ModeAssessment
	case PhaseLessonActive, PhaseLessonComplete:
		return intent.ModeLesson
	default:
		return intent.ModeDashboard
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Phase reports the current flow position.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SectionIndex reports the lesson cursor.
func (s *Session) SectionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.section
}

// QuestionIndex reports the assessment cursor.
func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question
}

// Chapter returns a copy of the chapter including completion flags.
func (s *Session) Chapter() content.Chapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.chapter
	out.Sections = make([]content.Section, len(s.chapter.Sections))
	copy(out.Sections, s.chapter.Sections)
	return out
}

// Questions returns a copy of the question set including answers.
func (s *Session) Questions() []content.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]content.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// AssessmentResult reports the final score once the assessment finished.
func (s *Session) AssessmentResult() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Conversation returns a copy of the append-only conversation log.
func (s *Session) Conversation() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.conversation))
	copy(out, s.conversation)
	return out
}

func roundPercent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}
