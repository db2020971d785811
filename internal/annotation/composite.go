package annotation

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

const (
	strokeWidth = 4.0
	borderWidth = 3.0
)

// MaxCompositeSide bounds the longer side of a composite bitmap. Larger
// sources are downscaled before marks are drawn.
const MaxCompositeSide = 1600

var (
	penColor       = color.NRGBA{R: 230, G: 40, B: 40, A: 255}
	highlightFill  = color.NRGBA{R: 255, G: 230, B: 0, A: 90}
	highlightFrame = color.NRGBA{R: 255, G: 190, B: 0, A: 255}
)

// Composite draws marks recorded on a width x height surface onto source at
// its native resolution, capped at MaxCompositeSide. Without a source the
// marks go onto a white canvas the size of the surface. Transparent source
// pixels come out white.
func Composite(source image.Image, width, height float64, paths [][]Point, rects []Rect) *image.NRGBA {
	width, height = clampSide(width), clampSide(height)

	var dst *image.NRGBA
	if source != nil {
		b := source.Bounds()
		w, h := fitWithin(b.Dx(), b.Dy(), MaxCompositeSide)
		dst = whiteCanvas(w, h)
		if w == b.Dx() && h == b.Dy() {
			draw.Draw(dst, dst.Bounds(), source, b.Min, draw.Over)
		} else {
			draw.ApproxBiLinear.Scale(dst, dst.Bounds(), source, b, draw.Over, nil)
		}
	} else {
		w, h := fitWithin(int(math.Ceil(width)), int(math.Ceil(height)), MaxCompositeSide)
		dst = whiteCanvas(w, h)
	}
	sx := float64(dst.Bounds().Dx()) / width
	sy := float64(dst.Bounds().Dy()) / height

	scale := (sx + sy) / 2
	c := canvas{dst: dst, sx: sx, sy: sy}

	for _, r := range rects {
		lo, hi := c.toBitmap(r.Min), c.toBitmap(r.Max)
		corners := []Point{lo, {hi.X, lo.Y}, hi, {lo.X, hi.Y}}
		c.fill(highlightFill, corners)
		c.stroke(highlightFrame, append(corners, lo), borderWidth*scale)
	}
	for _, p := range paths {
		pts := make([]Point, len(p))
		for i, pt := range p {
			pts[i] = c.toBitmap(pt)
		}
		c.stroke(penColor, pts, strokeWidth*scale)
	}
	return dst
}

func whiteCanvas(w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	return dst
}

// fitWithin scales w x h down, keeping its aspect ratio, until neither side
// exceeds limit.
func fitWithin(w, h, limit int) (int, int) {
	w, h = max(w, 1), max(h, 1)
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}

// scaleTo returns src resampled to w x h.
func scaleTo(src image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

type canvas struct {
	dst    *image.NRGBA
	sx, sy float64
}

func (c canvas) toBitmap(p Point) Point {
	return Point{X: p.X * c.sx, Y: p.Y * c.sy}
}

func (c canvas) rasterizer() *vector.Rasterizer {
	b := c.dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over
	return z
}

func (c canvas) fill(col color.Color, poly []Point) {
	z := c.rasterizer()
	c.addPolygon(z, poly)
	z.Draw(c.dst, c.dst.Bounds(), image.NewUniform(col), image.Point{})
}

// stroke draws a polyline of the given width with round-ish joins. All
// sub-polygons share one winding so overlaps accumulate instead of cancelling.
func (c canvas) stroke(col color.Color, pts []Point, width float64) {
	if len(pts) == 0 {
		return
	}
	half := math.Max(width, 1) / 2
	z := c.rasterizer()
	for i := 1; i < len(pts); i++ {
		p0, p1 := pts[i-1], pts[i]
		dx, dy := p1.X-p0.X, p1.Y-p0.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		c.addPolygon(z, []Point{
			{p0.X + nx, p0.Y + ny},
			{p1.X + nx, p1.Y + ny},
			{p1.X - nx, p1.Y - ny},
			{p0.X - nx, p0.Y - ny},
		})
	}
	for _, p := range pts {
		c.addPolygon(z, joint(p, half))
	}
	z.Draw(c.dst, c.dst.Bounds(), image.NewUniform(col), image.Point{})
}

// joint approximates a disc with an octagon wound the same way as segment quads.
func joint(p Point, r float64) []Point {
	out := make([]Point, 8)
	for k := range out {
		theta := -float64(k) * math.Pi / 4
		out[k] = Point{p.X + r*math.Cos(theta), p.Y + r*math.Sin(theta)}
	}
	return out
}

func (c canvas) addPolygon(z *vector.Rasterizer, poly []Point) {
	b := c.dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	clip := func(p Point) (float32, float32) {
		return float32(math.Min(math.Max(p.X, 0), w)), float32(math.Min(math.Max(p.Y, 0), h))
	}
	x, y := clip(poly[0])
	z.MoveTo(x, y)
	for _, p := range poly[1:] {
		x, y = clip(p)
		z.LineTo(x, y)
	}
	z.ClosePath()
}
