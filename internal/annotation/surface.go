package annotation

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
)

// Tool selects how pointer gestures are recorded.
type Tool string

const (
	ToolFreehand  Tool = "freehand"
	ToolRectangle Tool = "rectangle"
)

// MaxSurfaceSide bounds a surface's width and height in surface pixels.
const MaxSurfaceSide = 4096

// minRectSize is the smallest rectangle side, in surface pixels, that counts as a mark.
const minRectSize = 2

const freeformAlt = "freeform sketch"

// Point is a coordinate relative to the surface's bounding box.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in surface coordinates.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

func rectFrom(a, b Point) Rect {
	return Rect{
		Min: Point{math.Min(a.X, b.X), math.Min(a.Y, b.Y)},
		Max: Point{math.Max(a.X, b.X), math.Max(a.Y, b.Y)},
	}
}

func (r Rect) valid() bool {
	return r.Max.X-r.Min.X >= minRectSize && r.Max.Y-r.Min.Y >= minRectSize
}

// Surface records freehand paths and rectangles over an optional source image
// and publishes the composite to a Store when a stroke completes.
type Surface struct {
	mu     sync.Mutex
	id     string
	store  *Store
	tool   Tool
	width  float64
	height float64
	source image.Image
	alt    string

	paths [][]Point
	rects []Rect

	drawing bool
	current []Point
	anchor  Point
	cursor  Point
}

// NewSurface creates a capture surface of the given size that publishes to store.
func NewSurface(id string, store *Store, tool Tool, width, height float64) *Surface {
	if tool != ToolRectangle {
		tool = ToolFreehand
	}
	return &Surface{
		id:     id,
		store:  store,
		tool:   tool,
		width:  clampSide(width),
		height: clampSide(height),
	}
}

// clampSide bounds a client-reported dimension to [1, MaxSurfaceSide].
// NaN maps to 1.
func clampSide(v float64) float64 {
	if !(v >= 1) {
		return 1
	}
	return math.Min(v, MaxSurfaceSide)
}

// ID returns the surface identifier.
func (s *Surface) ID() string { return s.id }

// SetTool switches the active tool. An in-progress gesture is dropped.
func (s *Surface) SetTool(tool Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tool != ToolRectangle {
		tool = ToolFreehand
	}
	s.tool = tool
	s.drawing = false
	s.current = nil
}

// SetSource sets the bitmap marks are composited onto. A nil image means a
// blank white canvas.
func (s *Surface) SetSource(img image.Image, alt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = img
	s.alt = alt
}

// Resize resynchronizes the drawing buffer to a new bounding box, clamped to
// MaxSurfaceSide. Stored points keep their coordinates.
func (s *Surface) Resize(width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = clampSide(width)
	s.height = clampSide(height)
}

// PointerDown starts a gesture at p.
func (s *Surface) PointerDown(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.clamp(p)
	s.drawing = true
	s.anchor = p
	s.cursor = p
	s.current = []Point{p}
}

// PointerMove extends the active gesture.
func (s *Surface) PointerMove(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing {
		return
	}
	p = s.clamp(p)
	s.cursor = p
	if s.tool == ToolFreehand {
		s.current = append(s.current, p)
	}
}

// PointerUp finishes the active gesture. When at least one valid mark exists
// the surface is composited and published; ok reports whether that happened.
func (s *Surface) PointerUp() (a Annotation, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drawing {
		switch s.tool {
		case ToolRectangle:
			if r := rectFrom(s.anchor, s.cursor); r.valid() {
				s.rects = append(s.rects, r)
			}
		default:
			if len(s.current) >= 2 {
				s.paths = append(s.paths, s.current)
			}
		}
	}
	s.drawing = false
	s.current = nil

	if len(s.paths) == 0 && len(s.rects) == 0 {
		return Annotation{}, false, nil
	}

	img := Composite(s.source, s.width, s.height, s.paths, s.rects)
	url, err := EncodeCompositeDataURL(img)
	if err != nil {
		return Annotation{}, false, fmt.Errorf("composite surface %s: %w", s.id, err)
	}

	alt := s.alt
	if alt == "" && s.source == nil {
		alt = freeformAlt
	}
	a = Annotation{
		ImageDataURL: url,
		Type:         Classify(len(s.paths) > 0, len(s.rects) > 0, s.source != nil),
		AltText:      alt,
	}
	s.store.Set(a)
	slog.Debug("Annotation published", "surface", s.id, "type", a.Type, "paths", len(s.paths), "rects", len(s.rects))
	return a, true, nil
}

// Clear removes all marks and clears the shared store.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = nil
	s.rects = nil
	s.drawing = false
	s.current = nil
	s.store.Clear()
}

// Marks returns the number of committed paths and rectangles.
func (s *Surface) Marks() (paths, rects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths), len(s.rects)
}

func (s *Surface) clamp(p Point) Point {
	return Point{
		X: math.Min(math.Max(p.X, 0), s.width),
		Y: math.Min(math.Max(p.Y, 0), s.height),
	}
}

// Classify derives the annotation type from the kinds of marks present.
func Classify(hasPaths, hasRects, hasSource bool) Type {
	switch {
	case hasPaths && hasRects:
		return TypeHighlightedAndDrawnOn
	case hasRects:
		return TypeHighlightedRectangle
	case hasSource:
		return TypeCircledOrDrawnOnParts
	default:
		return TypeDrawnOn
	}
}
