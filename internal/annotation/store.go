// Package annotation captures user markup over images and holds the most
// recent composited result for the tutor.
package annotation

import "sync"

// Type describes how an image was marked up.
type Type string

const (
	TypeDrawnOn               Type = "drawn-on"
	TypeHighlightedRectangle  Type = "highlighted-rectangular-area-of"
	TypeCircledOrDrawnOnParts Type = "circled/drawn-on-parts-of"
	TypeHighlightedAndDrawnOn Type = "highlighted-and-drawn-on-parts-of"
)

// Annotation is a composited image plus how it was marked up.
type Annotation struct {
	ImageDataURL string `json:"imageDataUrl"`
	Type         Type   `json:"annotationType"`
	AltText      string `json:"altText"`
}

// Store holds at most one annotation. A new Set replaces the previous value
// without notifying anyone.
type Store struct {
	mu      sync.RWMutex
	current *Annotation
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the current annotation.
func (s *Store) Set(a Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &a
}

// Get returns the current annotation, if any.
func (s *Store) Get() (Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Annotation{}, false
	}
	return *s.current, true
}

// Clear drops the current annotation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
