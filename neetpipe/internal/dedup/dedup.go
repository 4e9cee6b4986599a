// Package dedup collapses repeated detections of the same question.
package dedup

import (
	"strconv"

	"github.com/hazyhaar/neetextract/neetpipe/internal/parse"
)

// prefixRunes is how much of the question text takes part in the key.
const prefixRunes = 50

// Key identifies a question for deduplication: its number and the first
// fifty characters of its text.
func Key(q parse.Question) string {
	r := []rune(q.QuestionText)
	if len(r) > prefixRunes {
		r = r[:prefixRunes]
	}
	return strconv.Itoa(q.QuestionNumber) + "\x00" + string(r)
}

// Questions keeps the first occurrence of every key, preserving order.
// The input slice is not modified.
func Questions(qs []parse.Question) []parse.Question {
	seen := make(map[string]struct{}, len(qs))
	out := make([]parse.Question, 0, len(qs))
	for _, q := range qs {
		k := Key(q)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, q)
	}
	return out
}

// UniqueIDs suffixes ids that still collide after deduplication ("q_3_12",
// "q_3_12_2", ...). The first holder keeps the bare id.
func UniqueIDs(qs []parse.Question) {
	count := make(map[string]int, len(qs))
	taken := make(map[string]bool, len(qs))
	for i := range qs {
		taken[qs[i].ID] = true
	}
	for i := range qs {
		id := qs[i].ID
		count[id]++
		if count[id] == 1 {
			continue
		}
		n := count[id]
		next := id + "_" + strconv.Itoa(n)
		for taken[next] {
			n++
			next = id + "_" + strconv.Itoa(n)
		}
		count[id] = n
		taken[next] = true
		qs[i].ID = next
	}
}
