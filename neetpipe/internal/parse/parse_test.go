package parse

import (
	"math"
	"reflect"
	"testing"
)

const forcePage = "1. What is force?\n(1) Mass\n(2) Push/Pull\n(3) Energy\n(4) Speed"

const twoQuestionPage = `1. What is the SI unit of force?
(1) Newton
(2) Joule
(3) Watt
(4) Pascal
2. Which organelle is the powerhouse of the cell?
(1) Nucleus
(2) Mitochondria
(3) Ribosome
(4) Golgi body`

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPage_ForceQuestion(t *testing.T) {
	// WHAT: A single numbered question with parenthesised numeric options.
	// WHY: Reference scenario for the whole parser.
	qs := Page(forcePage, 1)
	if len(qs) != 1 {
		t.Fatalf("got %d questions, want 1: %+v", len(qs), qs)
	}
	q := qs[0]
	if q.QuestionNumber != 1 {
		t.Errorf("number = %d, want 1", q.QuestionNumber)
	}
	if q.QuestionText != "What is force?" {
		t.Errorf("text = %q", q.QuestionText)
	}
	want := map[string]string{"A": "Mass", "B": "Push/Pull", "C": "Energy", "D": "Speed"}
	if !reflect.DeepEqual(q.Options, want) {
		t.Errorf("options = %v, want %v", q.Options, want)
	}
	if q.Subject != SubjectPhysics {
		t.Errorf("subject = %s, want Physics", q.Subject)
	}
	if !q.HasMath {
		t.Error("expected HasMath (option digits)")
	}
	if q.HasImage {
		t.Error("unexpected HasImage")
	}
	if q.Complexity != ComplexityLow {
		t.Errorf("complexity = %s, want low", q.Complexity)
	}
	// 0.5 + 0.2 (4 options) + 0.1 (math) + 0.1 (?)
	if !approx(q.Confidence, 0.9) {
		t.Errorf("confidence = %f, want 0.9", q.Confidence)
	}
	if q.ID != "q_1_1" || q.PageNumber != 1 || q.Source != SourceText {
		t.Errorf("id/page/source = %s/%d/%s", q.ID, q.PageNumber, q.Source)
	}
}

func TestPage_TwoQuestions(t *testing.T) {
	qs := Page(twoQuestionPage, 4)
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	if qs[0].Subject != SubjectPhysics {
		t.Errorf("q1 subject = %s, want Physics", qs[0].Subject)
	}
	if qs[0].Complexity != ComplexityMedium {
		t.Errorf("q1 complexity = %s, want medium (SI)", qs[0].Complexity)
	}
	if qs[1].Subject != SubjectBiology {
		t.Errorf("q2 subject = %s, want Biology", qs[1].Subject)
	}
	if qs[1].Options["D"] != "Golgi body" {
		t.Errorf("q2 option D = %q", qs[1].Options["D"])
	}
	if qs[1].ID != "q_4_2" {
		t.Errorf("q2 id = %s", qs[1].ID)
	}
}

func TestPage_QPrefixedAlphaOptions(t *testing.T) {
	text := "Q.1 Calculate the velocity (v = d/t) of a body moving 2.5 m in 0.5 s.\n(A) 5 m/s\n(B) 2 m/s\n(C) 10 m/s\n(D) 1 m/s"
	qs := Page(text, 2)
	if len(qs) != 1 {
		t.Fatalf("got %d questions, want 1", len(qs))
	}
	q := qs[0]
	if q.Options["A"] != "5 m/s" || len(q.Options) != 4 {
		t.Errorf("options = %v", q.Options)
	}
	if q.Complexity != ComplexityHigh {
		t.Errorf("complexity = %s, want high", q.Complexity)
	}
}

func TestPage_QuestionWordLowercaseList(t *testing.T) {
	text := "Question 7: Which element is a noble gas?\na) Helium\nb) Oxygen\nc) Nitrogen\nd) Hydrogen"
	qs := Page(text, 1)
	if len(qs) != 1 {
		t.Fatalf("got %d questions, want 1", len(qs))
	}
	q := qs[0]
	if q.QuestionNumber != 7 {
		t.Errorf("number = %d, want 7", q.QuestionNumber)
	}
	want := map[string]string{"A": "Helium", "B": "Oxygen", "C": "Nitrogen", "D": "Hydrogen"}
	if !reflect.DeepEqual(q.Options, want) {
		t.Errorf("options = %v", q.Options)
	}
	if q.Subject != SubjectChemistry {
		t.Errorf("subject = %s, want Chemistry", q.Subject)
	}
}

func TestPage_InlineAlphaOptions(t *testing.T) {
	text := "5. The pH of pure water at 25 °C is A. 7.0 B. 6.5 C. 8.0 D. 14.0"
	qs := Page(text, 1)
	if len(qs) != 1 {
		t.Fatalf("got %d questions, want 1", len(qs))
	}
	if qs[0].Options["D"] != "14.0" {
		t.Errorf("options = %v", qs[0].Options)
	}
	if qs[0].QuestionText != "The pH of pure water at 25 °C is" {
		t.Errorf("text = %q", qs[0].QuestionText)
	}
}

func TestPage_SingleOptionDropped(t *testing.T) {
	// WHAT: A block with one recognisable option produces nothing.
	// WHY: Questions need at least two options to be accepted.
	if qs := Page("1. Which one is right?\nA) only option", 1); len(qs) != 0 {
		t.Fatalf("got %d questions, want 0: %+v", len(qs), qs)
	}
}

func TestPage_InlineQNotAQuestion(t *testing.T) {
	// WHAT: A bare "q 2" inside a sentence does not start a question.
	// WHY: Physics stems name charges q; only line-leading Q markers count.
	qs := Page("1. Find the force on a charge q 2 m away.\n(1) 1 N\n(2) 2 N\n(3) 3 N\n(4) 4 N", 1)
	if len(qs) != 1 {
		t.Fatalf("got %d questions, want 1: %+v", len(qs), qs)
	}
	if qs[0].QuestionNumber != 1 {
		t.Errorf("number = %d, want 1", qs[0].QuestionNumber)
	}
	if qs[0].QuestionText != "Find the force on a charge q 2 m away." {
		t.Errorf("text = %q", qs[0].QuestionText)
	}
}

func TestPage_ShortBlockDropped(t *testing.T) {
	if qs := Page("1. (1) ab", 1); len(qs) != 0 {
		t.Fatalf("got %d questions, want 0", len(qs))
	}
}

func TestPage_Garbage(t *testing.T) {
	// WHAT: Text with no numbering yields no questions and no panic.
	for _, text := range []string{"", "   ", "lorem ipsum dolor", "((((", "1.", "Q"} {
		if qs := Page(text, 1); len(qs) != 0 {
			t.Errorf("Page(%q) = %d questions, want 0", text, len(qs))
		}
	}
}

func TestPage_StyleLocksToFirstDelimiter(t *testing.T) {
	// WHAT: "1)" option lines under "N." questions are not question boundaries.
	// WHY: A page numbers its questions in one style.
	text := "1. Which quantity is a vector?\n1) Speed\n2) Mass\n3) Velocity\n4) Energy"
	qs := Page(text, 1)
	if len(qs) != 1 {
		t.Fatalf("got %d questions, want 1: %+v", len(qs), qs)
	}
	if len(qs[0].Options) != 4 {
		t.Errorf("options = %v", qs[0].Options)
	}
}

func TestPage_Idempotent(t *testing.T) {
	a := Page(twoQuestionPage, 3)
	b := Page(twoQuestionPage, 3)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("parsing the same page twice gave different results")
	}
}

func TestPage_Invariants(t *testing.T) {
	// WHAT: Confidence stays in [0,1] and every question has 2..4 options.
	inputs := []string{
		forcePage,
		twoQuestionPage,
		"Q.1 Calculate the velocity (v = d/t) of a body moving 2.5 m in 0.5 s.\n(A) 5 m/s\n(B) 2 m/s\n(C) 10 m/s\n(D) 1 m/s",
		"1. A long question about the gravitational force between two masses kept apart, what happens?\n(1) It doubles\n(2) It halves\n(3) It stays\n(4) It vanishes\n(1) again",
		"3. Short?\nA) yes\nB) no",
	}
	for _, in := range inputs {
		for _, q := range Page(in, 1) {
			if q.Confidence < 0 || q.Confidence > 1 {
				t.Errorf("confidence %f out of range", q.Confidence)
			}
			if n := len(q.Options); n < 2 || n > 4 {
				t.Errorf("option count %d out of range", n)
			}
		}
	}
}

func TestParser_LogsDrops(t *testing.T) {
	p := New(nil)
	if qs := p.Page("1. Which one is right?\nA) only option", 1); len(qs) != 0 {
		t.Fatal("expected no questions")
	}
}
