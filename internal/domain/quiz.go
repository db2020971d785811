package domain

import (
	"encoding/json"
	"strings"
)

// Importance ranks a topic card.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

func (i Importance) orDefault() Importance {
	switch Importance(strings.ToLower(string(i))) {
	case ImportanceHigh:
		return ImportanceHigh
	case ImportanceLow:
		return ImportanceLow
	default:
		return ImportanceMedium
	}
}

// TopicStorylineCard is one unit of study content, in navigation order.
type TopicStorylineCard struct {
	Title            string     `json:"title"`
	Topics           []string   `json:"topics"`
	Subtopics        []string   `json:"subtopics"`
	Importance       Importance `json:"importance"`
	Story            string     `json:"story"`
	Quiz             *TopicQuiz `json:"quiz,omitempty"`
	FriendExplainers []string   `json:"friendExplainers,omitempty"`
}

// ConceptKey returns the normalized concept a card's quiz exercises.
func (c *TopicStorylineCard) ConceptKey() string {
	if c.Quiz != nil {
		if k := NormalizeConcept(c.Quiz.FocusConcept); k != "" {
			return k
		}
	}
	if len(c.Topics) > 0 {
		if k := NormalizeConcept(c.Topics[0]); k != "" {
			return k
		}
	}
	return NormalizeConcept(c.Title)
}

// TopicQuiz is the checkpoint attached to a card.
type TopicQuiz struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	CorrectIndex    int      `json:"correctIndex"`
	Explanation     string   `json:"explanation"`
	Misconception   string   `json:"misconception"`
	FocusConcept    string   `json:"focusConcept,omitempty"`
	OpenQuestion    string   `json:"openQuestion,omitempty"`
	OpenModelAnswer string   `json:"openModelAnswer,omitempty"`
}

// UnmarshalJSON decodes a quiz and clamps CorrectIndex into range.
func (q *TopicQuiz) UnmarshalJSON(data []byte) error {
	type plain TopicQuiz
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*q = TopicQuiz(p)
	q.clamp()
	return nil
}

func (q *TopicQuiz) clamp() {
	switch {
	case q.CorrectIndex < 0 || len(q.Options) == 0:
		q.CorrectIndex = 0
	case q.CorrectIndex >= len(q.Options):
		q.CorrectIndex = len(q.Options) - 1
	}
}

// HasOpenQuestion reports whether passing requires an open answer.
func (q *TopicQuiz) HasOpenQuestion() bool {
	return q != nil && strings.TrimSpace(q.OpenQuestion) != ""
}

// NormalizeConcept lowercases and collapses whitespace.
func NormalizeConcept(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
