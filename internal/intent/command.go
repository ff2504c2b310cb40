package intent

// Kind discriminates the command variant parsed from an utterance.
type Kind int

const (
	Unrecognized Kind = iota
	Navigate
	SelectSubject
	StartLearning
	ContinueLearning
	NextSection
	PreviousSection
	Repeat
	Explain
	MarkComplete
	AskQuestion
	Help
	StartAssessment
	SelectOption
	NextQuestion
	PreviousQuestion
	SetTimeframe
	ShowProgress
	ShowStats
	StopListening
	StartListening
	StopSpeaking
	Finish
	Retry
	Restart
)

func (k Kind) String() string {
	switch k {
	case Navigate:
		return "navigate"
	case SelectSubject:
		return "select_subject"
	case StartLearning:
		return "start_learning"
	case ContinueLearning:
		return "continue_learning"
	case NextSection:
		return "next_section"
	case PreviousSection:
		return "previous_section"
	case Repeat:
		return "repeat"
	case Explain:
		return "explain"
	case MarkComplete:
		return "mark_complete"
	case AskQuestion:
		return "ask_question"
	case Help:
		return "help"
	case StartAssessment:
		return "start_assessment"
	case SelectOption:
		return "select_option"
	case NextQuestion:
		return "next_question"
	case PreviousQuestion:
		return "previous_question"
	case SetTimeframe:
		return "set_timeframe"
	case ShowProgress:
		return "show_progress"
	case ShowStats:
		return "show_stats"
	case StopListening:
		return "stop_listening"
	case StartListening:
		return "start_listening"
	case StopSpeaking:
		return "stop_speaking"
	case Finish:
		return "finish"
	case Retry:
		return "retry"
	case Restart:
		return "restart"
	default:
		return "unrecognized"
	}
}

// Command is the typed interpretation of one utterance, decoupled from
// wording. Parsing never causes side effects.
type Command struct {
	Kind Kind

	// Navigate
	Direction string // "back"
	Page      string // "dashboard", "progress"

	// SelectSubject
	Subject string

	// SelectOption: either a zero-based option index or a spoken boolean.
	OptionIndex int
	Boolean     *bool

	// SetTimeframe
	Timeframe string // "week", "month", "all"

	Confidence float64
	Raw        string // original text, kept on Unrecognized for diagnostics
}
