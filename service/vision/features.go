package vision

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/analytics"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
)

// descriptors owns an ORB descriptor Mat (one row per keypoint).
type descriptors struct {
	mat gocv.Mat
}

func (d *descriptors) Len() int {
	return d.mat.Rows()
}

func (d *descriptors) Close() error {
	return d.mat.Close()
}

// Features computes ORB descriptors and counts cross-checked Hamming
// matches closer than the configured distance.
type Features struct {
	maxDistance float64

	// ORB and BFMatcher are not safe for concurrent use.
	mu      sync.Mutex
	orb     gocv.ORB
	matcher gocv.BFMatcher
}

func NewFeatures(maxDistance float64) *Features {
	if maxDistance <= 0 {
		maxDistance = analytics.DefaultMatchDistance
	}
	return &Features{
		maxDistance: maxDistance,
		orb:         gocv.NewORB(),
		matcher:     gocv.NewBFMatcherWithParams(gocv.NormHamming, true),
	}
}

// Describe computes descriptors for a grayscale image or face region.
func (f *Features) Describe(gray gocv.Mat) (model.Descriptors, error) {
	if gray.Empty() {
		return nil, ErrEmptyImage
	}

	mask := gocv.NewMat()
	defer mask.Close()

	f.mu.Lock()
	kps, des := f.orb.DetectAndCompute(gray, mask)
	f.mu.Unlock()

	if len(kps) == 0 || des.Empty() {
		des.Close()
		return &descriptors{mat: gocv.NewMat()}, nil
	}
	return &descriptors{mat: des}, nil
}

// DescribeBytes decodes an encoded image as grayscale and describes it.
func (f *Features) DescribeBytes(data []byte) (model.Descriptors, error) {
	gray, err := decodeGray(data)
	defer gray.Close()
	if err != nil {
		return nil, err
	}
	return f.Describe(gray)
}

// CountMatches returns the number of good matches between query and train.
func (f *Features) CountMatches(query, train model.Descriptors) int {
	q, ok1 := query.(*descriptors)
	t, ok2 := train.(*descriptors)
	if !ok1 || !ok2 || q.Len() == 0 || t.Len() == 0 {
		return 0
	}

	f.mu.Lock()
	matches := f.matcher.Match(t.mat, q.mat)
	f.mu.Unlock()

	distances := make([]float64, len(matches))
	for i, m := range matches {
		distances[i] = m.Distance
	}
	return analytics.CountGood(distances, f.maxDistance)
}

func (f *Features) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Join(f.orb.Close(), f.matcher.Close())
}
