package neetpipe

import (
	"errors"
	"math"

	"github.com/hazyhaar/neetextract/neetpipe/internal/analyze"
	"github.com/hazyhaar/neetextract/neetpipe/internal/parse"
	"github.com/hazyhaar/neetextract/neetpipe/internal/textextract"
)

// ErrNotNEETFormat is returned (and reported in Result.Errors) when strict
// mode is on and the document is not recognised as a NEET paper.
var ErrNotNEETFormat = errors.New("document is not in NEET format")

type (
	Question         = parse.Question
	Subject          = parse.Subject
	Complexity       = parse.Complexity
	Source           = parse.Source
	DocumentAnalysis = analyze.DocumentAnalysis
	Quality          = analyze.Quality
)

const (
	SubjectPhysics   = parse.SubjectPhysics
	SubjectChemistry = parse.SubjectChemistry
	SubjectBiology   = parse.SubjectBiology

	SourceText = parse.SourceText
	SourceOCR  = parse.SourceOCR
)

// Metadata summarises one ProcessFile call.
type Metadata struct {
	TotalPages int `json:"totalPages"`
	// PagesProcessed counts the pages the page loop reached, skipped ones
	// included; PagesWithQuestions those that yielded at least one question.
	PagesProcessed     int     `json:"pagesProcessed"`
	PagesSkipped       int     `json:"pagesSkipped"`
	PagesWithQuestions int     `json:"pagesWithQuestions"`
	QuestionsFound     int     `json:"questionsFound"`
	AverageConfidence  float64 `json:"averageConfidence"`
	// ProcessingTimeMS is the wall-clock duration of the call.
	ProcessingTimeMS  int64                `json:"processingTime"`
	DocumentAnalysis  DocumentAnalysis     `json:"documentAnalysis"`
	OCRPagesAttempted int                  `json:"ocrPagesAttempted"`
	OCRPagesAccepted  int                  `json:"ocrPagesAccepted"`
	AnswersApplied    int                  `json:"answersApplied"`
	ExtractionQuality *textextract.Quality `json:"extractionQuality,omitempty"`
}

// Result is the outcome of ProcessFile. Document-level failures leave
// Questions empty and put the message in Errors.
type Result struct {
	Questions []Question `json:"questions"`
	Metadata  Metadata   `json:"metadata"`
	Errors    []string   `json:"errors"`
	Warnings  []string   `json:"warnings"`

	// partial is set when a timeout or a failed OCR page cut the yield.
	partial bool
}

// Complete reports whether the result is a full extraction: no
// document-level error, no timeout and no failed OCR page.
func (r *Result) Complete() bool {
	return len(r.Errors) == 0 && !r.partial
}

// QualityScore rates the result in [0,1] for an operator deciding whether
// to accept it: 60% average confidence, 40% questions found against the
// analyzer's estimate. Failed results score 0.
func (r *Result) QualityScore() float64 {
	if len(r.Errors) > 0 {
		return 0
	}
	coverage := 0.0
	if est := r.Metadata.DocumentAnalysis.EstimatedQuestionCount; est > 0 {
		coverage = math.Min(1, float64(r.Metadata.QuestionsFound)/float64(est))
	}
	return 0.6*r.Metadata.AverageConfidence + 0.4*coverage
}

// failed builds the result of a document-level failure.
func failed(err error) *Result {
	return &Result{
		Questions: []Question{},
		Metadata:  Metadata{DocumentAnalysis: analyze.Empty()},
		Errors:    []string{err.Error()},
		Warnings:  []string{},
	}
}
