package progress

import (
	"testing"

	"github.com/ashureev/lastminute/internal/domain"
)

func TestGradeOpenAnswerConcisePass(t *testing.T) {
	card := recursionCard(true)
	g := GradeOpenAnswer("recursion", &card)
	if !g.Passed || g.Kind != GradeConcise {
		t.Fatalf("Expected concise pass, got %+v", g)
	}
	if g.Feedback != feedbackConcise {
		t.Errorf("Expected concise feedback, got %q", g.Feedback)
	}
}

func TestGradeOpenAnswerStandardPassViaConnective(t *testing.T) {
	card := recursionCard(true)
	// Ten words, no topic phrase and no key-term overlap.
	answer := "it would go on forever because nothing tells it stop"
	g := GradeOpenAnswer(answer, &card)
	if !g.Passed || g.Kind != GradeStandard {
		t.Fatalf("Expected standard pass, got %+v", g)
	}
	if g.Feedback != feedbackStandard {
		t.Errorf("Expected standard feedback, got %q", g.Feedback)
	}
}

func TestGradeOpenAnswerStandardPassViaOverlap(t *testing.T) {
	card := recursionCard(true)
	g := GradeOpenAnswer("otherwise the stack overflows since calls never stop at all", &card)
	if !g.Passed || g.Kind != GradeStandard {
		t.Fatalf("Expected standard pass, got %+v", g)
	}
}

func TestGradeOpenAnswerFailShowsModelAnswer(t *testing.T) {
	card := recursionCard(true)
	tests := []string{
		"no idea",
		"it is something that programmers write quite often in code",
	}
	for _, answer := range tests {
		g := GradeOpenAnswer(answer, &card)
		if g.Passed || g.Kind != GradeFail {
			t.Errorf("Expected %q to fail, got %+v", answer, g)
		}
		want := feedbackFailHint + card.Quiz.OpenModelAnswer
		if g.Feedback != want {
			t.Errorf("Expected model answer hint, got %q", g.Feedback)
		}
	}
}

func TestGradeOpenAnswerLongWithoutSignalFails(t *testing.T) {
	card := recursionCard(true)
	card.Quiz.OpenModelAnswer = ""
	g := GradeOpenAnswer("honestly I am not sure what to write here at all", &card)
	if g.Passed {
		t.Fatalf("Expected failure, got %+v", g)
	}
	if g.Feedback != feedbackFail {
		t.Errorf("Expected generic failure feedback, got %q", g.Feedback)
	}
}

func TestGradeOpenAnswerMatchesSingleLabelWords(t *testing.T) {
	card := domain.TopicStorylineCard{
		Title:  "Trees",
		Topics: []string{"Binary Search Trees"},
		Quiz:   &domain.TopicQuiz{OpenQuestion: "Describe the ordering rule."},
	}
	tests := []struct {
		answer string
		pass   bool
	}{
		// One label word, no connective, a single overlapping term.
		{"it is a binary layout where smaller keys go left and bigger keys go right", true},
		{"smaller keys go left and bigger keys go right of each node", false},
	}
	for _, tt := range tests {
		g := GradeOpenAnswer(tt.answer, &card)
		if g.Passed != tt.pass {
			t.Errorf("GradeOpenAnswer(%q) passed=%v, want %v (%+v)", tt.answer, g.Passed, tt.pass, g)
		}
	}
}
