package content

import "errors"

// ErrUnavailable is returned when a chapter exists but carries no usable
// sections or questions, or when a source cannot serve the requested key.
var ErrUnavailable = errors.New("content: unavailable")

// SectionKind classifies how a lesson section should be presented aloud.
type SectionKind string

const (
	SectionText     SectionKind = "text"
	SectionDiagram  SectionKind = "diagram"
	SectionActivity SectionKind = "activity"
)

// Section is one unit of a chapter. Sections are read-only reference data for
// a session except for the Completed flag, which only the dialogue session
// flips.
type Section struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	Kind        SectionKind `json:"kind"`
	Description string      `json:"description,omitempty"` // spoken detail for diagram sections
	Completed   bool        `json:"completed"`
}

// Chapter is an ordered sequence of sections for a (subject, chapter) key.
type Chapter struct {
	Subject    string    `json:"subject"`
	Chapter    string    `json:"chapter"`
	Title      string    `json:"title"`
	PageNumber int       `json:"pageNumber"`
	Sections   []Section `json:"sections"`
}

// QuestionKind classifies assessment questions.
type QuestionKind string

const (
	MultipleChoice QuestionKind = "multiple-choice"
	TrueFalse      QuestionKind = "true-false"
	OpenEnded      QuestionKind = "open-ended"
)

// Result is the tri-state outcome of a question. It is set exactly once per
// attempt and only cleared by an explicit retry.
type Result int

const (
	ResultUnknown Result = iota
	ResultCorrect
	ResultIncorrect
)

// Question is one assessment item. UserAnswer and Outcome start empty and are
// filled in by the dialogue session when the learner answers.
type Question struct {
	ID            string       `json:"id"`
	Prompt        string       `json:"prompt"`
	Kind          QuestionKind `json:"kind"`
	Options       []string     `json:"options,omitempty"` // ordered, for multiple-choice and true/false
	CorrectAnswer string       `json:"correctAnswer"`
	Explanation   string       `json:"explanation,omitempty"`
	UserAnswer    string       `json:"userAnswer,omitempty"`
	Outcome       Result       `json:"outcome"`
}

// Source supplies chapter content and its assessment question set. It is
// read-only from the engine's point of view; implementations may be backed by
// a curriculum service or the builtin catalog.
type Source interface {
	Chapter(subject, chapter string) (Chapter, error)
	Questions(subject, chapter string) ([]Question, error)
}
