// Package domain contains core domain types for the LastMinute workspace.
package domain

import (
	"errors"
	"strings"
	"time"
)

// SessionTTL is how long a processed upload stays readable.
const SessionTTL = 2 * time.Hour

// ErrSessionNotFound is returned when a session does not exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// Session is the record produced once per upload by the processing pipeline.
// It is read-only for everything downstream of the session store.
type Session struct {
	ID                string           `json:"id"`
	Filename          string           `json:"filename"`
	Concepts          []string         `json:"concepts"`
	Checklist         []string         `json:"checklist"`
	InteractiveStory  InteractiveStory `json:"interactiveStory"`
	FinalStorytelling string           `json:"finalStorytelling"`
	StoryBeats        []StoryBeat      `json:"storyBeats,omitempty"`
	LLMUsed           bool             `json:"llmUsed"`
	LLMStatus         string           `json:"llmStatus,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	ExpiresAt         time.Time        `json:"expiresAt"`
}

// InteractiveStory is the mission: a title plus ordered topic cards.
type InteractiveStory struct {
	Title  string               `json:"title"`
	Topics []TopicStorylineCard `json:"topics"`
}

// StoryBeat is an illustration keyed by a label.
type StoryBeat struct {
	Label   string `json:"label"`
	Image   string `json:"image"`
	Caption string `json:"caption,omitempty"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Title returns the story title, falling back to the uploaded filename.
func (s *Session) Title() string {
	if t := strings.TrimSpace(s.InteractiveStory.Title); t != "" {
		return t
	}
	if s.Filename != "" {
		return s.Filename
	}
	return "Untitled mission"
}

// Normalize trims labels and enforces the card and quiz invariants.
// Quizzes with fewer than two options are dropped.
func (s *Session) Normalize() {
	s.Concepts = compactStrings(s.Concepts)
	s.Checklist = compactStrings(s.Checklist)
	for i := range s.InteractiveStory.Topics {
		card := &s.InteractiveStory.Topics[i]
		card.Title = strings.TrimSpace(card.Title)
		card.Topics = compactStrings(card.Topics)
		card.Subtopics = compactStrings(card.Subtopics)
		card.Importance = card.Importance.orDefault()
		if card.Quiz == nil {
			continue
		}
		if len(card.Quiz.Options) < 2 {
			card.Quiz = nil
			continue
		}
		card.Quiz.clamp()
	}
}

// NarrativeContext returns the text the tutor is grounded on.
func (s *Session) NarrativeContext() string {
	var b strings.Builder
	b.WriteString(s.Title())
	if len(s.Concepts) > 0 {
		b.WriteString("\nConcepts: ")
		b.WriteString(strings.Join(s.Concepts, ", "))
	}
	if s.FinalStorytelling != "" {
		b.WriteString("\n\n")
		b.WriteString(s.FinalStorytelling)
	}
	return b.String()
}

func compactStrings(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
