package domain

import "strings"

// AssignBeats picks an illustration for every card and returns the beat index
// per card (-1 when there are no beats). Precedence: a beat whose label matches
// the card title or one of its topics, then the beat at the same position,
// then round-robin over all beats.
func AssignBeats(cards []TopicStorylineCard, beats []StoryBeat) []int {
	out := make([]int, len(cards))
	for i := range out {
		out[i] = -1
	}
	if len(beats) == 0 {
		return out
	}

	used := make([]bool, len(beats))
	for i := range cards {
		for j, beat := range beats {
			if !used[j] && beatMatches(beat.Label, &cards[i]) {
				out[i] = j
				used[j] = true
				break
			}
		}
	}

	for i := range cards {
		if out[i] == -1 && i < len(beats) && !used[i] {
			out[i] = i
			used[i] = true
		}
	}

	next := 0
	for i := range cards {
		if out[i] == -1 {
			out[i] = next % len(beats)
			next++
		}
	}
	return out
}

func beatMatches(label string, card *TopicStorylineCard) bool {
	label = NormalizeConcept(label)
	if label == "" {
		return false
	}
	candidates := append([]string{card.Title}, card.Topics...)
	for _, c := range candidates {
		c = NormalizeConcept(c)
		if c == "" {
			continue
		}
		if c == label || strings.Contains(c, label) || strings.Contains(label, c) {
			return true
		}
	}
	return false
}
