package parse

import (
	"log/slog"
	"strings"
)

// Parser turns page text into questions. The zero value is usable and logs
// nothing; drops are logged at Debug when a logger is set.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser that reports dropped blocks to logger.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Page parses the text of one page. pageNumber is 1-based. Text that cannot
// be segmented yields no questions.
func (p *Parser) Page(text string, pageNumber int) []Question {
	var out []Question
	for _, s := range segmenters {
		for _, b := range s.segment(text) {
			q, ok := p.build(b, pageNumber, s.name)
			if ok {
				out = append(out, q)
			}
		}
	}
	return out
}

// Page parses one page without logging.
func Page(text string, pageNumber int) []Question {
	var p Parser
	return p.Page(text, pageNumber)
}

func (p *Parser) build(b block, pageNumber int, segmenterName string) (Question, bool) {
	if len(strings.TrimSpace(b.text)) < minBlockLen {
		p.debug("parse: block too short", "page", pageNumber, "number", b.number, "segmenter", segmenterName)
		return Question{}, false
	}

	m, ok := extractOptions(b.text)
	if !ok {
		p.debug("parse: not enough options", "page", pageNumber, "number", b.number, "segmenter", segmenterName)
		return Question{}, false
	}

	stem := collapse(b.text[:m.stemEnd])
	full := collapse(b.text)
	hasMath := HasMath(full)

	return Question{
		ID:             QuestionID(pageNumber, b.number),
		QuestionNumber: b.number,
		QuestionText:   stem,
		Options:        m.options,
		Subject:        ClassifySubject(full),
		Complexity:     ClassifyComplexity(stem),
		HasMath:        hasMath,
		HasImage:       HasImage(full),
		PageNumber:     pageNumber,
		Confidence:     Confidence(stem, len(m.options), hasMath),
		Source:         SourceText,
	}, true
}

func (p *Parser) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
