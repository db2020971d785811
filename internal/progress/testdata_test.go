package progress

import "github.com/ashureev/lastminute/internal/domain"

func recursionCard(withOpen bool) domain.TopicStorylineCard {
	quiz := &domain.TopicQuiz{
		Question:      "What must every recursive function have?",
		Options:       []string{"A loop", "A base case", "A global variable"},
		CorrectIndex:  1,
		Explanation:   "A base case stops the recursion.",
		Misconception: "Recursion does not need a loop to terminate.",
		FocusConcept:  "Recursion",
	}
	if withOpen {
		quiz.OpenQuestion = "Why does recursion need a base case?"
		quiz.OpenModelAnswer = "Without a base case, recursion never stops and the call stack overflows."
	}
	return domain.TopicStorylineCard{
		Title:      "Recursion",
		Topics:     []string{"recursion"},
		Subtopics:  []string{"base case", "call stack"},
		Importance: domain.ImportanceHigh,
		Story:      "A function that calls itself.",
		Quiz:       quiz,
	}
}

func sortingCard() domain.TopicStorylineCard {
	return domain.TopicStorylineCard{
		Title:  "Sorting",
		Topics: []string{"sorting"},
		Quiz: &domain.TopicQuiz{
			Question:      "Which sort is stable?",
			Options:       []string{"Merge sort", "Heap sort"},
			CorrectIndex:  0,
			Explanation:   "Merge sort keeps equal keys in order.",
			Misconception: "Heap sort reorders equal keys.",
			FocusConcept:  "stable sorting",
		},
	}
}
