package analytics

import (
	"image"
	"math"
	"testing"
	"time"
)

// regular returns a convex n-gon of the given radius centred at (200, 200).
func regular(n int, radius float64) []image.Point {
	poly := make([]image.Point, n)
	for i := range poly {
		a := 2 * math.Pi * float64(i) / float64(n)
		poly[i] = image.Pt(200+int(radius*math.Cos(a)), 200+int(radius*math.Sin(a)))
	}
	return poly
}

func box(n int) Candidate {
	p := regular(n, 60)
	return Candidate{Area: Area(p), Polygon: p}
}

func TestIsConvex(t *testing.T) {
	tests := []struct {
		name string
		poly []image.Point
		want bool
	}{
		{"hexagon", regular(6, 50), true},
		{"hexagon clockwise", reverse(regular(6, 50)), true},
		{"square with collinear vertex", []image.Point{{0, 0}, {5, 0}, {10, 0}, {10, 10}, {0, 10}}, true},
		{"arrow", []image.Point{{0, 0}, {10, 5}, {0, 10}, {3, 5}}, false},
		{"bow tie", []image.Point{{0, 0}, {10, 10}, {10, 0}, {0, 10}}, false},
		{"pentagram", []image.Point{{100, 0}, {159, 181}, {5, 69}, {195, 69}, {41, 181}}, false},
		{"line", []image.Point{{0, 0}, {5, 5}, {10, 10}}, false},
		{"two points", []image.Point{{0, 0}, {1, 1}}, false},
	}
	for _, tt := range tests {
		if got := IsConvex(tt.poly); got != tt.want {
			t.Errorf("%s: IsConvex = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func reverse(p []image.Point) []image.Point {
	out := make([]image.Point, len(p))
	for i := range p {
		out[len(p)-1-i] = p[i]
	}
	return out
}

func TestArea(t *testing.T) {
	sq := []image.Point{{0, 0}, {50, 0}, {50, 40}, {0, 40}}
	if got := Area(sq); got != 2000 {
		t.Fatalf("area %v", got)
	}
	if got := Area(reverse(sq)); got != 2000 {
		t.Fatalf("reversed area %v", got)
	}
}

func TestBoxCounterFilter(t *testing.T) {
	bc := NewBoxCounter(DefaultBoxCounterParams())

	small := regular(6, 10)
	tests := []struct {
		name string
		c    Candidate
		want bool
	}{
		{"pentagon", box(5), true},
		{"hexagon", box(6), true},
		{"octagon", box(8), true},
		{"quad", box(4), false},
		{"nonagon", box(9), false},
		{"too small", Candidate{Area: Area(small), Polygon: small}, false},
		{"concave", Candidate{Area: 5000, Polygon: []image.Point{{0, 0}, {100, 0}, {100, 100}, {50, 20}, {0, 100}}}, false},
	}
	for _, tt := range tests {
		if got := bc.Accept(tt.c); got != tt.want {
			t.Errorf("%s: Accept = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func frameOf(n int) []Candidate {
	out := make([]Candidate, 0, n+2)
	for i := 0; i < n; i++ {
		out = append(out, box(6))
	}
	// noise that never counts
	return append(out, box(4), Candidate{Area: 10, Polygon: regular(6, 2)})
}

func TestBoxCounterEmitsWindowPeak(t *testing.T) {
	bc := NewBoxCounter(DefaultBoxCounterParams())
	t0 := time.Unix(1000, 0)
	step := 100 * time.Millisecond

	// 10 fps: counts per frame for 2.5 seconds
	counts := []int{1, 3, 2, 0, 4, 1, 1, 2, 0, 1, 2, 0, 0, 1, 5, 0, 2, 2, 1, 0, 3, 3, 0, 1, 1}

	var emitted []int
	var at []int
	for i, n := range counts {
		valid, peak, ok := bc.Observe(frameOf(n), t0.Add(time.Duration(i)*step))
		if len(valid) != n {
			t.Fatalf("frame %d: %d valid polygons, want %d", i, len(valid), n)
		}
		if ok {
			emitted = append(emitted, peak)
			at = append(at, i)
		} else if peak != 0 {
			t.Fatalf("frame %d: value %d without emission", i, peak)
		}
	}

	// windows: frames 0..10 (boundary at frame 10), then 11..20
	wantAt := []int{10, 20}
	wantPeak := []int{4, 5}
	if len(emitted) != len(wantPeak) {
		t.Fatalf("emitted %v at %v", emitted, at)
	}
	for i := range wantPeak {
		if at[i] != wantAt[i] || emitted[i] != wantPeak[i] {
			t.Fatalf("emitted %v at %v, want %v at %v", emitted, at, wantPeak, wantAt)
		}
	}
}

func TestBoxCounterNothingBeforeOneSecond(t *testing.T) {
	bc := NewBoxCounter(DefaultBoxCounterParams())
	t0 := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		if _, ok := bc.Count(7, t0.Add(time.Duration(i)*99*time.Millisecond)); ok {
			t.Fatalf("emitted at frame %d", i)
		}
	}
	if peak, ok := bc.Count(0, t0.Add(time.Second)); !ok || peak != 7 {
		t.Fatalf("boundary: %d %v", peak, ok)
	}
	// a long stall still yields one emission, then a fresh window
	if peak, ok := bc.Count(2, t0.Add(5*time.Second)); !ok || peak != 2 {
		t.Fatalf("after stall: %d %v", peak, ok)
	}
	if _, ok := bc.Count(9, t0.Add(5*time.Second+time.Millisecond)); ok {
		t.Fatal("window did not reset")
	}
}

func TestFaceMatcherLabel(t *testing.T) {
	m := FaceMatcher{MinScore: DefaultMinScore}

	tests := []struct {
		name   string
		scores []Score
		want   string
	}{
		{"no templates", nil, Unknown},
		{"clear winner", []Score{{"alice", 12}, {"bob", 30}, {"carol", 4}}, "bob"},
		{"below minimum", []Score{{"alice", 9}, {"bob", 3}}, Unknown},
		{"exactly minimum", []Score{{"alice", 10}}, "alice"},
		{"tie goes to smallest name", []Score{{"zed", 20}, {"amy", 20}, {"kim", 20}}, "amy"},
		{"tie below winner", []Score{{"amy", 15}, {"bob", 15}, {"cat", 16}}, "cat"},
	}
	for _, tt := range tests {
		got, _ := m.Label(tt.scores)
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFaceMatcherTieBreakIsOrderIndependent(t *testing.T) {
	m := FaceMatcher{MinScore: 1}
	a := []Score{{"mia", 11}, {"ada", 11}, {"eve", 11}}
	b := []Score{{"eve", 11}, {"mia", 11}, {"ada", 11}}
	la, _ := m.Label(a)
	lb, _ := m.Label(b)
	if la != "ada" || lb != "ada" {
		t.Fatalf("got %q and %q", la, lb)
	}
}

func TestCountGood(t *testing.T) {
	if n := CountGood([]float64{10, 59.9, 60, 61, 0}, DefaultMatchDistance); n != 3 {
		t.Fatalf("got %d", n)
	}
}

func TestCadence(t *testing.T) {
	c := NewCadence(DefaultDetectEvery)
	calls := 0
	detect := func() []image.Rectangle {
		calls++
		return []image.Rectangle{image.Rect(0, 0, calls, calls)}
	}

	for i := 0; i < 12; i++ {
		regions, fresh := c.Next(detect)
		if fresh != (i%5 == 0) {
			t.Fatalf("frame %d: fresh=%v", i, fresh)
		}
		if len(regions) != 1 || regions[0].Max.X != calls {
			t.Fatalf("frame %d: stale regions %v", i, regions)
		}
	}
	if calls != 3 {
		t.Fatalf("detected %d times", calls)
	}

	c.Reset()
	if _, fresh := c.Next(detect); !fresh {
		t.Fatal("reset did not force detection")
	}
}

func TestCoolDown(t *testing.T) {
	base := time.Unix(1000, 0)
	c := NewCoolDown(10 * time.Second)

	if !c.Allow("face/alice", base) {
		t.Fatal("first alert suppressed")
	}
	if c.Allow("face/alice", base.Add(9*time.Second)) {
		t.Fatal("repeat inside period allowed")
	}
	if !c.Allow("face/bob", base.Add(time.Second)) {
		t.Fatal("other key suppressed")
	}
	if !c.Allow("face/alice", base.Add(10*time.Second)) {
		t.Fatal("alert after period suppressed")
	}
}

func TestAlertGateCountsEveryWindow(t *testing.T) {
	base := time.Unix(1000, 0)
	g := NewAlertGate(0, 10*time.Second)

	for i := 0; i < 10; i++ {
		if !g.AllowCount(base.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("window %d count suppressed", i)
		}
	}
	if !g.AllowLabel("alice", base) {
		t.Fatal("first recognition suppressed")
	}
	if g.AllowLabel("alice", base.Add(5*time.Second)) {
		t.Fatal("repeat recognition allowed")
	}
}
