package progress

import (
	"strings"
	"unicode"

	"github.com/ashureev/lastminute/internal/domain"
)

// GradeKind tells how an open answer was judged.
type GradeKind string

const (
	GradeStandard GradeKind = "standard"
	GradeConcise  GradeKind = "concise"
	GradeFail     GradeKind = "fail"
)

// Grade is the result of GradeOpenAnswer.
type Grade struct {
	Passed   bool
	Kind     GradeKind
	Feedback string
}

const (
	standardMinChars = 45
	standardMinWords = 8
	conciseMaxWords  = 4
	minOverlap       = 2
	minLabelKeyword  = 4

	feedbackStandard = "Good explanation. You tied the idea together in your own words."
	feedbackConcise  = "Nice, that's the key idea. Try adding one sentence on why it matters."
	feedbackFailHint = "Not quite yet. A strong answer would be: "
	feedbackFail     = "Not quite yet. Try explaining it in a full sentence using the key terms from this topic."
)

var connectives = []string{"because", "therefore", "then", "so that", "which means", "first", "next", "finally"}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {}, "from": {},
	"are": {}, "was": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"why": {}, "how": {}, "into": {}, "about": {}, "your": {}, "you": {}, "they": {},
	"them": {}, "their": {}, "there": {}, "these": {}, "those": {}, "have": {}, "has": {},
	"had": {}, "does": {}, "did": {}, "also": {}, "more": {}, "most": {}, "some": {},
	"such": {}, "than": {}, "each": {}, "other": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "can": {}, "its": {}, "not": {}, "but": {}, "all": {}, "any": {},
	"one": {}, "two": {}, "thing": {}, "things": {}, "answer": {}, "question": {},
	"explain": {}, "describe": {}, "example": {}, "using": {}, "used": {}, "use": {},
	"like": {}, "just": {}, "very": {}, "really": {}, "because": {}, "therefore": {},
	"then": {}, "first": {}, "next": {}, "finally": {}, "means": {}, "mean": {},
}

// GradeOpenAnswer is a keyword, length and connective heuristic, not semantic
// grading. A standard pass needs a long enough answer plus one signal: a topic
// or focus phrase or one of its words, a reasoning connective, or two
// overlapping key terms. A concise pass accepts up to four words containing a
// term from the model answer, explanation, misconception or focus concept.
func GradeOpenAnswer(answer string, card *domain.TopicStorylineCard) Grade {
	quiz := card.Quiz
	if quiz == nil {
		quiz = &domain.TopicQuiz{}
	}
	words := tokenize(answer)
	joined := " " + strings.Join(words, " ") + " "

	labels := append(append(append([]string(nil), card.Topics...), card.Subtopics...), quiz.FocusConcept)
	hasKeyword := false
	for _, phrase := range labels {
		p := strings.Join(tokenize(phrase), " ")
		if len(p) >= 3 && strings.Contains(joined, " "+p+" ") {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		// Single label words count too, so "search tree" matches a
		// "Binary Search Trees" topic.
		keywords := termSet(minLabelKeyword, labels...)
		for _, w := range words {
			if _, ok := keywords[w]; ok {
				hasKeyword = true
				break
			}
		}
	}

	hasConnective := false
	for _, c := range connectives {
		if strings.Contains(joined, " "+c+" ") {
			hasConnective = true
			break
		}
	}

	terms := termSet(3, quiz.Question, quiz.OpenQuestion, quiz.OpenModelAnswer,
		strings.Join(card.Topics, " "), strings.Join(card.Subtopics, " "))
	overlap := 0
	seen := make(map[string]struct{})
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := terms[w]; ok {
			overlap++
		}
	}

	long := len(strings.TrimSpace(answer)) >= standardMinChars || len(words) >= standardMinWords
	if long && (hasKeyword || hasConnective || overlap >= minOverlap) {
		return Grade{Passed: true, Kind: GradeStandard, Feedback: feedbackStandard}
	}

	if n := len(words); n > 0 && n <= conciseMaxWords {
		high := termSet(4, quiz.OpenModelAnswer, quiz.Explanation, quiz.Misconception, quiz.FocusConcept)
		for _, w := range words {
			if _, ok := high[w]; ok {
				return Grade{Passed: true, Kind: GradeConcise, Feedback: feedbackConcise}
			}
		}
	}

	if model := strings.TrimSpace(quiz.OpenModelAnswer); model != "" {
		return Grade{Kind: GradeFail, Feedback: feedbackFailHint + model}
	}
	return Grade{Kind: GradeFail, Feedback: feedbackFail}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termSet(minLen int, texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range texts {
		for _, w := range tokenize(t) {
			if len(w) < minLen {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			set[w] = struct{}{}
		}
	}
	return set
}
