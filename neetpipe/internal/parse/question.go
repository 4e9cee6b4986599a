// Package parse turns the plain text of one exam page into question records.
//
// Parsing never fails: malformed or partial text only yields fewer questions.
// The pipeline:
//
//	page text → segment (numbered / Q-prefixed / "Question N") → blocks
//	block     → option strategies (first with ≥2 options wins) → Question
//	Question  → subject vote, complexity, math/image flags, confidence
package parse

import "fmt"

// Subject is the exam section a question belongs to.
type Subject string

const (
	SubjectPhysics   Subject = "Physics"
	SubjectChemistry Subject = "Chemistry"
	SubjectBiology   Subject = "Biology"
)

// Complexity is a coarse difficulty estimate.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Source records which extraction pass produced a question.
type Source string

const (
	SourceText Source = "text"
	SourceOCR  Source = "ocr"
)

// Question is one extracted multiple-choice question.
type Question struct {
	ID             string            `json:"id"`
	QuestionNumber int               `json:"questionNumber"`
	QuestionText   string            `json:"questionText"`
	Options        map[string]string `json:"options"`
	Subject        Subject           `json:"subject"`
	Complexity     Complexity        `json:"complexity"`
	HasMath        bool              `json:"hasMath"`
	HasImage       bool              `json:"hasImage"`
	CorrectAnswer  string            `json:"correctAnswer,omitempty"`
	Explanation    string            `json:"explanation,omitempty"`
	PageNumber     int               `json:"pageNumber"`
	Confidence     float64           `json:"confidence"`
	Source         Source            `json:"source"`
}

// QuestionID derives the id of a question from its page and in-page number.
// Two detections of the same number on the same page share an id until
// deduplication runs.
func QuestionID(page, number int) string {
	return fmt.Sprintf("q_%d_%d", page, number)
}

// OptionKeys lists the option keys in display order.
var OptionKeys = []string{"A", "B", "C", "D"}
