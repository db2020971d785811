// Package progress tracks quiz attempts per topic, gates navigation on the
// pass condition and keeps the weak-concept tally and checklist.
package progress

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/lastminute/internal/domain"
)

var (
	ErrNoQuiz           = errors.New("topic has no quiz")
	ErrNoSelection      = errors.New("no option selected")
	ErrOptionRange      = errors.New("option out of range")
	ErrNoOpenQuestion   = errors.New("topic has no open question")
	ErrEmptyAnswer      = errors.New("empty answer")
	ErrUnknownChecklist = errors.New("unknown checklist item")
)

// AttemptState is the learner's progress on one topic's quiz.
type AttemptState struct {
	SelectedIndex *int   `json:"selectedIndex"`
	Submitted     bool   `json:"submitted"`
	IsCorrect     *bool  `json:"isCorrect"`
	Feedback      string `json:"feedback"`
	OpenAnswer    string `json:"openAnswer"`
	OpenSubmitted bool   `json:"openSubmitted"`
	OpenPassed    bool   `json:"openPassed"`
	OpenFeedback  string `json:"openFeedback"`
	OpenGrade     string `json:"openGrade,omitempty"`
	Attempts      int    `json:"attempts"`
}

// ChecklistItem is one entry of the study checklist.
type ChecklistItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Misconception is a logged miss, newest first in the log.
type Misconception struct {
	Topic   int       `json:"topic"`
	Title   string    `json:"title"`
	Concept string    `json:"concept"`
	Note    string    `json:"note"`
	At      time.Time `json:"at"`
}

// Snapshot is the engine state rendered to the learner.
type Snapshot struct {
	Current        int             `json:"current"`
	Total          int             `json:"total"`
	Attempt        AttemptState    `json:"attempt"`
	CanGoNext      bool            `json:"canGoNext"`
	CanGoPrev      bool            `json:"canGoPrev"`
	Finished       bool            `json:"finished"`
	Checklist      []ChecklistItem `json:"checklist"`
	WeakConcepts   []WeakConcept   `json:"weakConcepts"`
	Misconceptions []Misconception `json:"misconceptions"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSubmitObserver registers a callback for every graded submission.
// kind is "choice" or "open".
func WithSubmitObserver(fn func(kind string, passed bool)) Option {
	return func(e *Engine) { e.observe = fn }
}

// Engine is safe for concurrent use.
type Engine struct {
	mu             sync.Mutex
	cards          []domain.TopicStorylineCard
	attempts       []AttemptState
	current        int
	tally          *Tally
	misconceptions []Misconception
	checklist      []ChecklistItem
	now            func() time.Time
	observe        func(string, bool)
}

// New creates an engine over cards in navigation order. tasks are extra
// checklist entries that are only ever toggled manually.
func New(cards []domain.TopicStorylineCard, tasks []string, opts ...Option) *Engine {
	e := &Engine{
		cards:    cards,
		attempts: make([]AttemptState, len(cards)),
		tally:    NewTally(),
		now:      time.Now,
		observe:  func(string, bool) {},
	}
	for i := range cards {
		e.checklist = append(e.checklist, ChecklistItem{ID: topicItemID(i), Label: cards[i].Title})
	}
	for j, task := range tasks {
		e.checklist = append(e.checklist, ChecklistItem{ID: fmt.Sprintf("task-%d", j), Label: task})
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func topicItemID(i int) string {
	return fmt.Sprintf("topic-%d", i)
}

// Current returns the current topic index.
func (e *Engine) Current() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Attempt returns the attempt state of topic i.
func (e *Engine) Attempt(i int) AttemptState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.attempts) {
		return AttemptState{}
	}
	return e.attempts[i]
}

// Select chooses an option on the current topic's quiz.
func (e *Engine) Select(option int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	quiz, err := e.quiz()
	if err != nil {
		return err
	}
	if option < 0 || option >= len(quiz.Options) {
		return ErrOptionRange
	}
	e.attempts[e.current].SelectedIndex = &option
	return nil
}

// Submit grades the selected option of the current topic.
func (e *Engine) Submit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	quiz, err := e.quiz()
	if err != nil {
		return err
	}
	a := &e.attempts[e.current]
	if a.SelectedIndex == nil {
		return ErrNoSelection
	}

	correct := *a.SelectedIndex == quiz.CorrectIndex
	a.Submitted = true
	a.IsCorrect = &correct
	a.Attempts++
	card := &e.cards[e.current]

	if correct {
		a.Feedback = quiz.Explanation
		if !quiz.HasOpenQuestion() {
			e.tally.Hit(card.ConceptKey())
		}
		e.markDoneIfPassed(e.current)
	} else {
		a.Feedback = quiz.Misconception
		e.recordMiss(card, quiz.Misconception)
	}
	e.observe("choice", correct)
	return nil
}

// SetOpenAnswer stores the open-answer draft of the current topic.
func (e *Engine) SetOpenAnswer(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.quiz(); err != nil {
		return err
	}
	e.attempts[e.current].OpenAnswer = text
	return nil
}

// SubmitOpen grades the current topic's open answer.
func (e *Engine) SubmitOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	quiz, err := e.quiz()
	if err != nil {
		return err
	}
	if !quiz.HasOpenQuestion() {
		return ErrNoOpenQuestion
	}
	a := &e.attempts[e.current]
	if strings.TrimSpace(a.OpenAnswer) == "" {
		return ErrEmptyAnswer
	}

	card := &e.cards[e.current]
	grade := GradeOpenAnswer(a.OpenAnswer, card)
	a.OpenSubmitted = true
	a.OpenPassed = grade.Passed
	a.OpenFeedback = grade.Feedback
	a.OpenGrade = string(grade.Kind)

	if grade.Passed {
		e.tally.Hit(card.ConceptKey())
		e.markDoneIfPassed(e.current)
	} else {
		note := quiz.Misconception
		if note == "" {
			note = grade.Feedback
		}
		e.recordMiss(card, note)
	}
	e.observe("open", grade.Passed)
	return nil
}

// CanGoNext reports whether the current topic satisfies the pass condition.
// On the last topic it still reports the condition; Next then has nowhere to go.
func (e *Engine) CanGoNext() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current < len(e.cards) && e.passed(e.current)
}

// Passed reports whether topic i satisfies the pass condition.
func (e *Engine) Passed(i int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.cards) {
		return false
	}
	return e.passed(i)
}

// Next advances when the current topic is passed. It reports whether the
// current index changed.
func (e *Engine) Next() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current >= len(e.cards)-1 || !e.passed(e.current) {
		return false
	}
	e.current++
	return true
}

// Prev always moves back unless already at the first topic.
func (e *Engine) Prev() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == 0 {
		return false
	}
	e.current--
	return true
}

// ToggleChecklist flips a checklist entry.
func (e *Engine) ToggleChecklist(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.checklist {
		if e.checklist[i].ID == id {
			e.checklist[i].Done = !e.checklist[i].Done
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownChecklist, id)
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		Current:        e.current,
		Total:          len(e.cards),
		CanGoPrev:      e.current > 0,
		Checklist:      append([]ChecklistItem(nil), e.checklist...),
		WeakConcepts:   e.tally.Entries(),
		Misconceptions: append([]Misconception(nil), e.misconceptions...),
	}
	if e.current < len(e.attempts) {
		s.Attempt = e.attempts[e.current]
		s.CanGoNext = e.passed(e.current)
		s.Finished = e.current == len(e.cards)-1 && s.CanGoNext
	}
	return s
}

// WeakConcepts returns the tally, most missed first.
func (e *Engine) WeakConcepts() []WeakConcept {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tally.Entries()
}

// TutorContext appends the learner's position and weak spots to base.
func (e *Engine) TutorContext(base string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	b.WriteString(base)
	if e.current < len(e.cards) {
		card := e.cards[e.current]
		fmt.Fprintf(&b, "\n\nCurrent topic (%d of %d): %s", e.current+1, len(e.cards), card.Title)
		if card.Story != "" {
			b.WriteString("\n")
			b.WriteString(card.Story)
		}
	}
	if weak := e.tally.Entries(); len(weak) > 0 {
		parts := make([]string, len(weak))
		for i, w := range weak {
			parts[i] = fmt.Sprintf("%s (%d)", w.Concept, w.Misses)
		}
		b.WriteString("\n\nWeak concepts: ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if n := min(len(e.misconceptions), 3); n > 0 {
		b.WriteString("\nRecent misconceptions:")
		for _, m := range e.misconceptions[:n] {
			b.WriteString("\n- ")
			b.WriteString(m.Note)
		}
	}
	return b.String()
}

func (e *Engine) quiz() (*domain.TopicQuiz, error) {
	if e.current >= len(e.cards) || e.cards[e.current].Quiz == nil {
		return nil, ErrNoQuiz
	}
	return e.cards[e.current].Quiz, nil
}

// passed is the pass condition. A topic without a quiz has nothing to gate.
func (e *Engine) passed(i int) bool {
	quiz := e.cards[i].Quiz
	if quiz == nil {
		return true
	}
	a := e.attempts[i]
	if a.IsCorrect == nil || !*a.IsCorrect {
		return false
	}
	return !quiz.HasOpenQuestion() || a.OpenPassed
}

func (e *Engine) markDoneIfPassed(i int) {
	if !e.passed(i) {
		return
	}
	id := topicItemID(i)
	for j := range e.checklist {
		if e.checklist[j].ID == id {
			e.checklist[j].Done = true
			return
		}
	}
}

func (e *Engine) recordMiss(card *domain.TopicStorylineCard, note string) {
	concept := card.ConceptKey()
	e.tally.Miss(concept)
	entry := Misconception{
		Topic:   e.current,
		Title:   card.Title,
		Concept: concept,
		Note:    note,
		At:      e.now(),
	}
	e.misconceptions = append([]Misconception{entry}, e.misconceptions...)
	if len(e.misconceptions) > MaxMisconceptions {
		e.misconceptions = e.misconceptions[:MaxMisconceptions]
	}
}
