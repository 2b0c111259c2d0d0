package analytics

import (
	"image"
	"time"
)

// Candidate is one external contour of the foreground mask: its area and the
// polygon it simplifies to.
type Candidate struct {
	Area    float64
	Polygon []image.Point
}

type BoxCounterParams struct {
	Window      time.Duration
	MinArea     float64
	MinVertices int
	MaxVertices int
}

func DefaultBoxCounterParams() BoxCounterParams {
	return BoxCounterParams{
		Window:      time.Second,
		MinArea:     2000,
		MinVertices: 5,
		MaxVertices: 8,
	}
}

// BoxCounter reports the peak number of box-shaped polygons seen in any single
// frame of each window. The first window opens at the first observed frame.
type BoxCounter struct {
	params  BoxCounterParams
	started bool
	start   time.Time
	max     int
}

func NewBoxCounter(p BoxCounterParams) *BoxCounter {
	return &BoxCounter{params: p}
}

// Accept applies the area, vertex-count and convexity filter.
func (b *BoxCounter) Accept(c Candidate) bool {
	n := len(c.Polygon)
	return c.Area >= b.params.MinArea &&
		n >= b.params.MinVertices && n <= b.params.MaxVertices &&
		IsConvex(c.Polygon)
}

// Observe filters one frame's candidates and folds the accepted count into the
// window. When the window has run its length, the window peak (this frame
// included) is returned with emitted set and a new window starts at now.
func (b *BoxCounter) Observe(candidates []Candidate, now time.Time) (valid [][]image.Point, count int, emitted bool) {
	for _, c := range candidates {
		if b.Accept(c) {
			valid = append(valid, c.Polygon)
		}
	}
	count, emitted = b.Count(len(valid), now)
	return valid, count, emitted
}

// Count folds an already-filtered per-frame count into the window.
func (b *BoxCounter) Count(n int, now time.Time) (int, bool) {
	if !b.started {
		b.started = true
		b.start = now
	}

	b.max = max(b.max, n)
	if now.Sub(b.start) < b.params.Window {
		return 0, false
	}

	peak := b.max
	b.start = now
	b.max = 0
	return peak, true
}
