package progress

import (
	"sort"

	"github.com/ashureev/lastminute/internal/domain"
)

// MaxMisconceptions caps the misconception log.
const MaxMisconceptions = 20

// WeakConcept is a concept with outstanding misses.
type WeakConcept struct {
	Concept string `json:"concept"`
	Misses  int    `json:"misses"`
}

// Tally counts recent misses per normalized concept. A success decrements
// the count; entries reaching zero are removed.
type Tally struct {
	counts map[string]int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

// Miss records a failure for concept.
func (t *Tally) Miss(concept string) {
	if concept = domain.NormalizeConcept(concept); concept == "" {
		return
	}
	t.counts[concept]++
}

// Hit records a success for concept.
func (t *Tally) Hit(concept string) {
	concept = domain.NormalizeConcept(concept)
	n, ok := t.counts[concept]
	if !ok {
		return
	}
	if n <= 1 {
		delete(t.counts, concept)
		return
	}
	t.counts[concept] = n - 1
}

// Count returns the misses recorded for concept.
func (t *Tally) Count(concept string) int {
	return t.counts[domain.NormalizeConcept(concept)]
}

// Has reports whether concept has an entry.
func (t *Tally) Has(concept string) bool {
	_, ok := t.counts[domain.NormalizeConcept(concept)]
	return ok
}

// Entries returns weak concepts, most missed first.
func (t *Tally) Entries() []WeakConcept {
	out := make([]WeakConcept, 0, len(t.counts))
	for c, n := range t.counts {
		out = append(out, WeakConcept{Concept: c, Misses: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Misses != out[j].Misses {
			return out[i].Misses > out[j].Misses
		}
		return out[i].Concept < out[j].Concept
	})
	return out
}
