package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	answerKeyHeadingRe = regexp.MustCompile(`(?i)\banswer\s*key\b|\banswers\b`)
	answerKeyEntryRe   = regexp.MustCompile(`(?i)(?:\bQ\.?\s*|\b)(\d{1,3})\s*[.):\-]\s*\(?([1-4A-D])(?:\)|\b)`)
)

// AnswerKey reads an answer-key section ("Answer Key" or "Answers" heading
// followed by entries like "12. (3)", "12 - C" or "Q12: B") and maps question
// numbers to option keys. Numeric answers map 1..4 to A..D. The first entry
// for a number wins. Text without a heading yields an empty map.
func AnswerKey(text string) map[int]string {
	key := map[int]string{}
	loc := answerKeyHeadingRe.FindStringIndex(text)
	if loc == nil {
		return key
	}
	section := text[loc[1]:]
	for _, m := range answerKeyEntryRe.FindAllStringSubmatch(section, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, dup := key[n]; dup {
			continue
		}
		ans := strings.ToUpper(m[2])
		if k, ok := numericKeys[ans]; ok {
			ans = k
		}
		key[n] = ans
	}
	return key
}

// ApplyAnswerKey sets CorrectAnswer on every question whose number has an
// entry in key naming one of its options. It returns how many were set.
func ApplyAnswerKey(qs []Question, key map[int]string) int {
	n := 0
	for i := range qs {
		ans, ok := key[qs[i].QuestionNumber]
		if !ok {
			continue
		}
		if _, exists := qs[i].Options[ans]; !exists {
			continue
		}
		qs[i].CorrectAnswer = ans
		n++
	}
	return n
}
