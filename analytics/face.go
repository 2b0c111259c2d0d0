package analytics

import "image"

const (
	Unknown = "Unknown"

	DefaultMatchDistance = 60
	DefaultMinScore      = 10
	DefaultDetectEvery   = 5
)

// Score is the number of good descriptor matches between a face and one
// enrolled template.
type Score struct {
	Name    string
	Matches int
}

type FaceMatcher struct {
	MinScore int
}

// Label picks the template with the highest score. Equal top scores go to the
// lexicographically smallest name. Below MinScore the face is Unknown.
func (m FaceMatcher) Label(scores []Score) (string, int) {
	best := Score{Matches: -1}
	for _, s := range scores {
		if s.Matches > best.Matches || (s.Matches == best.Matches && s.Name < best.Name) {
			best = s
		}
	}
	if best.Matches <= 0 || best.Matches < m.MinScore {
		return Unknown, max(best.Matches, 0)
	}
	return best.Name, best.Matches
}

// CountGood counts matches whose distance is below threshold.
func CountGood(distances []float64, threshold float64) int {
	n := 0
	for _, d := range distances {
		if d < threshold {
			n++
		}
	}
	return n
}

// Cadence runs an expensive detection every Nth frame and hands back the
// cached result in between.
type Cadence struct {
	every  int
	frame  int
	cached []image.Rectangle
}

func NewCadence(every int) *Cadence {
	if every <= 0 {
		every = 1
	}
	return &Cadence{every: every}
}

func (c *Cadence) Next(detect func() []image.Rectangle) (regions []image.Rectangle, fresh bool) {
	if c.frame%c.every == 0 {
		c.cached = detect()
		fresh = true
	}
	c.frame++
	return c.cached, fresh
}

// Reset forgets the cached regions, e.g. after a camera switch.
func (c *Cadence) Reset() {
	c.frame = 0
	c.cached = nil
}
