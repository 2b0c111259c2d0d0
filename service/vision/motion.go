package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/analytics"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
)

// MotionModel turns frames into polygon candidates: MOG2 foreground mask,
// binary threshold, one open and one close pass, external contours
// simplified with approxPolyDP.
type MotionModel struct {
	p      config.AnalyticsParameters
	mog2   gocv.BackgroundSubtractorMOG2
	kernel gocv.Mat
	mask   gocv.Mat
	bin    gocv.Mat
}

func NewMotionModel(p config.AnalyticsParameters) *MotionModel {
	return &MotionModel{
		p:      p,
		mog2:   gocv.NewBackgroundSubtractorMOG2WithParams(p.History, p.VarThreshold, false),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(p.KernelSize, p.KernelSize)),
		mask:   gocv.NewMat(),
		bin:    gocv.NewMat(),
	}
}

// Candidates returns every contour whose area reaches the minimum, with its
// simplified polygon. Filtering by shape is left to the BoxCounter.
func (m *MotionModel) Candidates(frame gocv.Mat) []analytics.Candidate {
	m.mog2.Apply(frame, &m.mask)
	gocv.Threshold(m.mask, &m.bin, float32(m.p.BinaryThreshold), 255, gocv.ThresholdBinary)
	gocv.MorphologyEx(m.bin, &m.bin, gocv.MorphOpen, m.kernel)
	gocv.MorphologyEx(m.bin, &m.bin, gocv.MorphClose, m.kernel)

	contours := gocv.FindContours(m.bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var out []analytics.Candidate
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < m.p.MinArea {
			continue
		}

		eps := m.p.EpsilonFactor * gocv.ArcLength(c, true)
		approx := gocv.ApproxPolyDP(c, eps, true)
		out = append(out, analytics.Candidate{
			Area:    area,
			Polygon: approx.ToPoints(),
		})
		approx.Close()
	}
	return out
}

func (m *MotionModel) Close() error {
	m.mog2.Close()
	m.kernel.Close()
	m.mask.Close()
	m.bin.Close()
	return nil
}
