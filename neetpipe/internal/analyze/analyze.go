// Package analyze classifies the raw text of an exam paper: whether it looks
// like a NEET paper, whether it carries instructions or solutions, how many
// questions it probably holds and how much usable text it has.
//
// Analyze is a pure function. It never fails, including on empty input.
package analyze

import (
	"regexp"
	"strings"
)

// Quality grades the amount of extracted text.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// NEETQuestionFloor is the lower bound of EstimatedQuestionCount. A NEET
// paper always carries about 180 questions, so a low raw count means the
// extraction lost text, not that the paper is short.
const NEETQuestionFloor = 150

// DocumentAnalysis is computed once per document from its concatenated text.
type DocumentAnalysis struct {
	IsNEETFormat           bool    `json:"isNEETFormat"`
	HasInstructions        bool    `json:"hasInstructions"`
	HasSolutions           bool    `json:"hasSolutions"`
	EstimatedQuestionCount int     `json:"estimatedQuestionCount"`
	ContentQuality         Quality `json:"contentQuality"`
}

// Empty is the analysis reported when a document could not be read.
func Empty() DocumentAnalysis {
	return DocumentAnalysis{ContentQuality: QualityPoor}
}

var neetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bNEET\b`),
	regexp.MustCompile(`(?i)\bNEET[\s-]*\(?\s*UG\s*\)?`),
	regexp.MustCompile(`(?i)National\s+Eligibility\s+cum\s+Entrance\s+Test`),
	regexp.MustCompile(`(?is)\bPhysics\b.*\bChemistry\b.*\b(?:Biology|Botany|Zoology)\b`),
	regexp.MustCompile(`(?i)Medical\s+Entrance`),
}

var (
	instructionsRe = regexp.MustCompile(`(?i)instruction|direction|guide`)
	solutionsRe    = regexp.MustCompile(`(?i)answer.*key|solution|correct.*answer`)
	questionMarkRe = regexp.MustCompile(`(?mi)(?:^\s*\d{1,3}\s*[.)]\s)|(?:\bQ\.?\s*\d{1,3}\b)`)
)

// Analyze inspects text and returns its classification.
func Analyze(text string) DocumentAnalysis {
	return DocumentAnalysis{
		IsNEETFormat:           IsNEETFormat(text),
		HasInstructions:        instructionsRe.MatchString(text),
		HasSolutions:           solutionsRe.MatchString(text),
		EstimatedQuestionCount: EstimateQuestionCount(text),
		ContentQuality:         GradeContent(text),
	}
}

// IsNEETFormat reports whether any NEET marker appears in text.
func IsNEETFormat(text string) bool {
	for _, re := range neetPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// EstimateQuestionCount scales the number of question markers by 0.8 and
// floors the result at NEETQuestionFloor.
func EstimateQuestionCount(text string) int {
	matches := len(questionMarkRe.FindAllStringIndex(text, -1))
	return max(int(float64(matches)*0.8), NEETQuestionFloor)
}

// GradeContent maps the word count of text to a Quality.
func GradeContent(text string) Quality {
	words := len(strings.Fields(text))
	switch {
	case words > 10000:
		return QualityExcellent
	case words > 5000:
		return QualityGood
	case words > 2000:
		return QualityFair
	default:
		return QualityPoor
	}
}
