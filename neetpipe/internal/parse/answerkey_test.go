package parse

import (
	"reflect"
	"testing"
)

func TestAnswerKey(t *testing.T) {
	text := "Some closing words.\nANSWER KEY\n1. (3) 2. (1)\n3 - C\nQ4: b\n1. (2)"
	got := AnswerKey(text)
	want := map[int]string{1: "C", 2: "A", 3: "C", 4: "B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AnswerKey = %v, want %v", got, want)
	}
}

func TestAnswerKey_NoHeading(t *testing.T) {
	// WHAT: Numbered lines outside an answer section are not answers.
	if got := AnswerKey("1. (3) 2. (1)"); len(got) != 0 {
		t.Errorf("expected empty key, got %v", got)
	}
}

func TestApplyAnswerKey(t *testing.T) {
	qs := Page(twoQuestionPage, 1)
	if len(qs) != 2 {
		t.Fatalf("setup: got %d questions", len(qs))
	}
	qs[1].Options = map[string]string{"A": "Nucleus", "B": "Mitochondria"}

	n := ApplyAnswerKey(qs, map[int]string{1: "A", 2: "D", 9: "B"})
	if n != 1 {
		t.Errorf("applied = %d, want 1", n)
	}
	if qs[0].CorrectAnswer != "A" {
		t.Errorf("q1 answer = %q", qs[0].CorrectAnswer)
	}
	if qs[1].CorrectAnswer != "" {
		t.Errorf("q2 answer should stay empty (no option D), got %q", qs[1].CorrectAnswer)
	}
}
