package analytics

import (
	"image"
	"math"
)

// IsConvex reports whether the closed polygon is convex and simple. Collinear
// vertices are tolerated; self-intersecting outlines are not.
func IsConvex(poly []image.Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	sign := 0
	turning := 0.0
	for i := 0; i < n; i++ {
		a, b, c := poly[i], poly[(i+1)%n], poly[(i+2)%n]
		e1 := b.Sub(a)
		e2 := c.Sub(b)

		cross := e1.X*e2.Y - e1.Y*e2.X
		switch {
		case cross > 0:
			if sign < 0 {
				return false
			}
			sign = 1
		case cross < 0:
			if sign > 0 {
				return false
			}
			sign = -1
		}

		if e1 == (image.Point{}) || e2 == (image.Point{}) {
			continue
		}
		dot := e1.X*e2.X + e1.Y*e2.Y
		turning += math.Atan2(float64(cross), float64(dot))
	}

	// A simple convex outline turns exactly once.
	return sign != 0 && math.Abs(math.Abs(turning)-2*math.Pi) < 1e-6
}

// Area is the absolute shoelace area of a closed polygon.
func Area(poly []image.Point) float64 {
	var sum int
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(float64(sum)) / 2
}
