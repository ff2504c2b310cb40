package content

import "fmt"

// Catalog is the builtin curriculum. A production deployment would stand a
// curriculum service behind the Source interface; the catalog keeps the engine
// usable offline and gives tests realistic chapters.
type Catalog struct{}

var _ Source = Catalog{}

// Chapter returns the chapter for the given key. Unknown keys synthesize a
// generic two-section chapter so a session can always start.
func (Catalog) Chapter(subject, chapter string) (Chapter, error) {
	if bySubject, ok := chapters[subject]; ok {
		if ch, ok := bySubject[chapter]; ok {
			out := ch
			out.Subject = subject
			out.Chapter = chapter
			out.Sections = cloneSections(ch.Sections)
			return out, nil
		}
	}
	return defaultChapter(subject, chapter), nil
}

// Questions returns the assessment set for the given key, falling back to the
// generic quick-check set when the chapter has no dedicated questions.
func (Catalog) Questions(subject, chapter string) ([]Question, error) {
	if bySubject, ok := questions[subject]; ok {
		if qs, ok := bySubject[chapter]; ok {
			return cloneQuestions(qs), nil
		}
	}
	return cloneQuestions(quickCheck), nil
}

func defaultChapter(subject, chapter string) Chapter {
	return Chapter{
		Subject:    subject,
		Chapter:    chapter,
		Title:      fmt.Sprintf("%s - %s", subject, chapter),
		PageNumber: 1,
		Sections: []Section{
			{
				ID:    "intro",
				Title: "Introduction",
				Body: fmt.Sprintf("Welcome to %s, %s! This chapter covers important concepts that will help you understand the subject better. Let's start learning together.",
					subject, chapter),
				Kind: SectionText,
			},
			{
				ID:    "content",
				Title: "Chapter Content",
				Body:  "This chapter contains valuable information about the topic. I will guide you through each section and explain the concepts in detail.",
				Kind:  SectionText,
			},
		},
	}
}

func cloneSections(in []Section) []Section {
	out := make([]Section, len(in))
	copy(out, in)
	return out
}

func cloneQuestions(in []Question) []Question {
	out := make([]Question, len(in))
	for i, q := range in {
		out[i] = q
		out[i].Options = append([]string(nil), q.Options...)
	}
	return out
}

var chapters = map[string]map[string]Chapter{
	"Science": {
		"Chapter-1": {
			Title:      "MATTER IN OUR SURROUNDINGS",
			PageNumber: 1,
			Sections: []Section{
				{
					ID:    "intro",
					Title: "Introduction to Matter",
					Body:  "Everything around us is made up of matter. Matter is anything that has mass and occupies space. The three states of matter are solid, liquid, and gas.",
					Kind:  SectionText,
				},
				{
					ID:    "states",
					Title: "States of Matter",
					Body:  "Matter exists in three states: solid, liquid, and gas. Solids have fixed shape and volume, liquids have fixed volume but no fixed shape, and gases have neither fixed shape nor volume.",
					Kind:  SectionText,
				},
				{
					ID:    "particles",
					Title: "Particle Nature of Matter",
					Body:  "All matter is made up of tiny particles called atoms and molecules. These particles are constantly moving and have spaces between them.",
					Kind:  SectionText,
				},
			},
		},
		"Chapter-4": {
			Title:      "10.2.3 Photosynthesis: in a nutshell",
			PageNumber: 146,
			Sections: []Section{
				{
					ID:    "nutshell",
					Title: "Photosynthesis in a nutshell",
					Body:  "We know that water, sunlight, carbon dioxide from the air, and chlorophyll are necessary to carry out the process of photosynthesis that produces carbohydrates. During photosynthesis, food is actually produced in the form of glucose, a simple carbohydrate. This glucose not only serves as an instant source of energy but also later gets converted into starch for storage.",
					Kind:  SectionText,
				},
				{
					ID:          "equation",
					Title:       "Word equation of photosynthesis",
					Body:        "Sunlight and chlorophyll help plants combine carbon dioxide and water to form glucose and oxygen.",
					Kind:        SectionDiagram,
					Description: "Carbon dioxide plus Water, in the presence of Sunlight and Chlorophyll, gives Glucose plus Oxygen.",
				},
				{
					ID:    "know-a-scientist",
					Title: "Know a Scientist: Rustom Hormusji Dastur",
					Body:  "Many scientists contributed to our understanding of photosynthesis. In India, Rustom Hormusji Dastur studied photosynthesis and led the Botany Department at the Royal Institute of Science, Bombay. He studied the effects of the amount of water and temperature on photosynthesis and examined the importance of water, temperature, and the colour of light in the process of photosynthesis.",
					Kind:  SectionText,
				},
				{
					ID:    "gas-exchange",
					Title: "10.2.4 How do leaves exchange gases during photosynthesis?",
					Body:  "Photosynthesis requires carbon dioxide, and oxygen is released in the process. Which part of the plant helps in the exchange of carbon dioxide and oxygen? Let us conduct an activity to understand where the exchange of gases takes place.",
					Kind:  SectionActivity,
				},
			},
		},
	},
	"Mathematics": {
		"Chapter-1": {
			Title:      "INTEGERS",
			PageNumber: 1,
			Sections: []Section{
				{
					ID:    "intro",
					Title: "Introduction to Integers",
					Body:  "Integers are whole numbers that can be positive, negative, or zero. They include numbers like minus three, minus two, minus one, zero, one, two, three, and so on.",
					Kind:  SectionText,
				},
				{
					ID:    "number-line",
					Title: "Number Line",
					Body:  "Integers can be represented on a number line. Positive integers are to the right of zero, and negative integers are to the left of zero.",
					Kind:  SectionText,
				},
				{
					ID:    "operations",
					Title: "Operations with Integers",
					Body:  "We can perform addition, subtraction, multiplication, and division with integers. The rules for these operations help us work with positive and negative numbers.",
					Kind:  SectionText,
				},
			},
		},
	},
	"Social Studies": {
		"Chapter-1": {
			Title:      "OUR ENVIRONMENT",
			PageNumber: 1,
			Sections: []Section{
				{
					ID:    "intro",
					Title: "What is Environment?",
					Body:  "Environment is everything that surrounds us. It includes both natural and human-made components that affect our daily lives.",
					Kind:  SectionText,
				},
				{
					ID:    "components",
					Title: "Components of Environment",
					Body:  "The environment has three main components: natural environment such as air, water and soil, human environment such as buildings and roads, and human-made environment such as technology and culture.",
					Kind:  SectionText,
				},
			},
		},
	},
	"English": {
		"Chapter-1": {
			Title:      "THREE QUESTIONS",
			PageNumber: 1,
			Sections: []Section{
				{
					ID:    "intro",
					Title: "Introduction to the Story",
					Body:  "This is a story about a king who seeks answers to three important questions that will help him rule his kingdom wisely.",
					Kind:  SectionText,
				},
				{
					ID:    "questions",
					Title: "The Three Questions",
					Body:  "The king asks: What is the right time to do something? Who are the right people to listen to? What is the most important thing to do?",
					Kind:  SectionText,
				},
			},
		},
	},
}

// quickCheck is the fallback question set used for chapters without a
// dedicated assessment.
var quickCheck = []Question{
	{ID: "q1", Prompt: "Who performs photosynthesis?", Kind: OpenEnded, CorrectAnswer: "green plants"},
	{ID: "q2", Prompt: "Where is photosynthesis done?", Kind: OpenEnded, CorrectAnswer: "leaves"},
	{ID: "q3", Prompt: "Which gas is produced after photosynthesis?", Kind: OpenEnded, CorrectAnswer: "oxygen"},
	{ID: "q4", Prompt: "Photosynthesis occurs in presence of what?", Kind: OpenEnded, CorrectAnswer: "sunlight"},
}

var questions = map[string]map[string][]Question{
	"Science": {
		"Chapter-4": {
			{
				ID:     "q1",
				Prompt: "What is the main purpose of photosynthesis in plants?",
				Kind:   MultipleChoice,
				Options: []string{
					"To produce oxygen for animals",
					"To make food using sunlight, water, and carbon dioxide",
					"To absorb nutrients from soil",
					"To grow taller",
				},
				CorrectAnswer: "To make food using sunlight, water, and carbon dioxide",
				Explanation:   "Photosynthesis is the process by which plants convert sunlight, water, and carbon dioxide into glucose and oxygen.",
			},
			{
				ID:            "q2",
				Prompt:        "Who conducted the famous bell jar experiment with a candle, mouse, and mint plant?",
				Kind:          MultipleChoice,
				Options:       []string{"Jan Ingenhousz", "Joseph Priestley", "Antoine Lavoisier", "Robert Hooke"},
				CorrectAnswer: "Joseph Priestley",
				Explanation:   "Joseph Priestley conducted this experiment in 1770 to demonstrate that plants can restore air that has been damaged by burning candles or breathing animals.",
			},
			{
				ID:            "q3",
				Prompt:        "True or False: Plants only produce oxygen during the day when there is sunlight.",
				Kind:          TrueFalse,
				Options:       []string{"True", "False"},
				CorrectAnswer: "True",
				Explanation:   "Plants only produce oxygen during photosynthesis, which requires sunlight. At night, plants consume oxygen for respiration.",
			},
			{
				ID:            "q4",
				Prompt:        "Explain what happened in Priestley's experiment when he added a mint plant to the bell jar with a candle and mouse.",
				Kind:          OpenEnded,
				CorrectAnswer: "plant restored the air oxygen candle mouse",
				Explanation:   "The mint plant restored the air by producing oxygen through photosynthesis, so the candle could keep burning and the mouse survived.",
			},
		},
	},
}
