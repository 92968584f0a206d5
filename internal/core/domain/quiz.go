package domain

import "encoding/json"

// Question is a multiple-choice item of the concept problem bank.
type Question struct {
	QuestionID    int      `json:"question_id" yaml:"question_id"`
	QuestionText  string   `json:"question_text" yaml:"question_text"`
	Options       []string `json:"options" yaml:"options"`
	CorrectOption int      `json:"correct_option" yaml:"correct_option"`
	PictureURL    *string  `json:"picture_url" yaml:"picture_url"`
}

type CalculationVariables struct {
	CurrentAssets      []float64 `json:"current_assets" yaml:"current_assets"`
	CurrentLiabilities []float64 `json:"current_liabilities" yaml:"current_liabilities"`
}

type CalculationProblem struct {
	QuestionID int                  `json:"question_id" yaml:"question_id"`
	Template   string               `json:"template" yaml:"template"`
	Variables  CalculationVariables `json:"variables" yaml:"variables"`
	Formula    string               `json:"formula" yaml:"formula"`
	PictureURL *string              `json:"picture_url" yaml:"picture_url"`
}

type CalculationSet struct {
	HasVariable bool                 `json:"has_variable" yaml:"has_variable"`
	Problems    []CalculationProblem `json:"problems" yaml:"problems"`
}

type ProblemQuestions struct {
	Definition     []Question     `json:"definition" yaml:"definition"`
	Interpretation []Question     `json:"interpretation" yaml:"interpretation"`
	Calculation    CalculationSet `json:"calculation" yaml:"calculation"`
}

// Problem groups the questions about one financial concept (e.g. current ratio).
type Problem struct {
	ID        string           `json:"_id" yaml:"id"`
	Concept   string           `json:"concept" yaml:"concept"`
	Questions ProblemQuestions `json:"questions" yaml:"questions"`
}

// QuizSection names a bucket of comparison questions.
type QuizSection string

const (
	SectionDefinition  QuizSection = "definition"
	SectionJudgement   QuizSection = "judgement"
	SectionCalculation QuizSection = "calculation"
)

func ParseQuizSection(s string) (QuizSection, bool) {
	switch QuizSection(s) {
	case SectionDefinition, SectionJudgement, SectionCalculation:
		return QuizSection(s), true
	default:
		return "", false
	}
}

// ComparisonSet is the read-only question bank for one comparison type.
// Question bodies are free-form.
type ComparisonSet struct {
	Type     int                `json:"type" yaml:"type"`
	Problems ComparisonProblems `json:"problems" yaml:"problems"`
}

type ComparisonProblems struct {
	Definition  []json.RawMessage `json:"definition" yaml:"-"`
	Judgement   []json.RawMessage `json:"judgement" yaml:"-"`
	Calculation []json.RawMessage `json:"calculation" yaml:"-"`
}

func (p ComparisonProblems) Section(section QuizSection) []json.RawMessage {
	switch section {
	case SectionDefinition:
		return p.Definition
	case SectionJudgement:
		return p.Judgement
	case SectionCalculation:
		return p.Calculation
	default:
		return nil
	}
}

// QuizSample is a random draw from one section of a comparison set.
type QuizSample struct {
	Type      int               `json:"type"`
	Section   QuizSection       `json:"section"`
	Questions []json.RawMessage `json:"questions"`
}
