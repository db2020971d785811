package domain

import (
	"encoding/json"
	"testing"
)

func TestTopicQuizClampsCorrectIndex(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"options":["a","b","c"],"correctIndex":1}`, 1},
		{`{"options":["a","b","c"],"correctIndex":7}`, 2},
		{`{"options":["a","b"],"correctIndex":-3}`, 0},
		{`{"options":[],"correctIndex":4}`, 0},
	}
	for _, tc := range cases {
		var q TopicQuiz
		if err := json.Unmarshal([]byte(tc.raw), &q); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tc.raw, err)
		}
		if q.CorrectIndex != tc.want {
			t.Errorf("Expected correctIndex %d for %s, got %d", tc.want, tc.raw, q.CorrectIndex)
		}
	}
}

func TestSessionNormalizeDropsSingleOptionQuiz(t *testing.T) {
	s := &Session{InteractiveStory: InteractiveStory{Topics: []TopicStorylineCard{
		{Title: " Loops ", Quiz: &TopicQuiz{Options: []string{"only"}}},
		{Title: "Recursion", Importance: "HIGH", Quiz: &TopicQuiz{Options: []string{"a", "b"}, CorrectIndex: 5}},
	}}}
	s.Normalize()

	if s.InteractiveStory.Topics[0].Quiz != nil {
		t.Error("Expected single-option quiz to be dropped")
	}
	if s.InteractiveStory.Topics[0].Title != "Loops" {
		t.Errorf("Expected trimmed title, got %q", s.InteractiveStory.Topics[0].Title)
	}
	if got := s.InteractiveStory.Topics[1].Quiz.CorrectIndex; got != 1 {
		t.Errorf("Expected clamped index 1, got %d", got)
	}
	if got := s.InteractiveStory.Topics[1].Importance; got != ImportanceHigh {
		t.Errorf("Expected importance high, got %q", got)
	}
	if got := s.InteractiveStory.Topics[0].Importance; got != ImportanceMedium {
		t.Errorf("Expected default importance medium, got %q", got)
	}
}

func TestConceptKeyFallbacks(t *testing.T) {
	card := TopicStorylineCard{Title: "Big  O", Topics: []string{"Time Complexity"}}
	if got := card.ConceptKey(); got != "time complexity" {
		t.Errorf("Expected topic fallback, got %q", got)
	}
	card.Quiz = &TopicQuiz{FocusConcept: "  Recursion "}
	if got := card.ConceptKey(); got != "recursion" {
		t.Errorf("Expected focus concept, got %q", got)
	}
	card = TopicStorylineCard{Title: "Big  O"}
	if got := card.ConceptKey(); got != "big o" {
		t.Errorf("Expected title fallback, got %q", got)
	}
}
