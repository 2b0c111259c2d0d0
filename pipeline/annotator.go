package pipeline

import (
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/analytics"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/templates"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/vision"
)

type Face struct {
	Rect  image.Rectangle
	Label string
}

// Annotation is what the analytics found on one frame.
type Annotation struct {
	Count   int
	Emitted bool
	Faces   []Face

	// FreshFaces is set on frames where detection ran.
	FreshFaces bool
}

// Annotator draws box-count and face-recognition overlays onto frames.
// It is used by the capture loop only.
type Annotator struct {
	motion    *vision.MotionModel
	counter   *analytics.BoxCounter
	faces     *vision.FaceDetector
	cadence   *analytics.Cadence
	features  *vision.Features
	templates templates.IService
}

// NewAnnotator builds the analytics chain. faces may be nil, in which case
// face recognition is skipped.
func NewAnnotator(p config.AnalyticsParameters, faces *vision.FaceDetector, features *vision.Features, tmpls templates.IService) *Annotator {
	return &Annotator{
		motion: vision.NewMotionModel(p),
		counter: analytics.NewBoxCounter(analytics.BoxCounterParams{
			Window:      p.Window,
			MinArea:     p.MinArea,
			MinVertices: p.MinVertices,
			MaxVertices: p.MaxVertices,
		}),
		faces:     faces,
		cadence:   analytics.NewCadence(p.DetectEvery),
		features:  features,
		templates: tmpls,
	}
}

func (a *Annotator) Annotate(frame *gocv.Mat, now time.Time) Annotation {
	var ann Annotation

	if a.faces != nil {
		regions, fresh := a.cadence.Next(func() []image.Rectangle {
			gray := vision.Gray(*frame)
			defer gray.Close()
			return a.faces.Detect(gray)
		})

		ann.FreshFaces = fresh

		bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
		for _, r := range regions {
			r = r.Intersect(bounds)
			if r.Empty() {
				continue
			}
			label := a.recognize(*frame, r)
			vision.DrawFace(frame, r, label)
			ann.Faces = append(ann.Faces, Face{Rect: r, Label: label})
		}
	}

	valid, count, emitted := a.counter.Observe(a.motion.Candidates(*frame), now)
	vision.DrawPolygons(frame, valid)
	if emitted {
		vision.DrawCount(frame, count)
		ann.Count = count
		ann.Emitted = true
	}

	return ann
}

func (a *Annotator) recognize(frame gocv.Mat, r image.Rectangle) string {
	if a.templates == nil || a.features == nil || a.templates.Len() == 0 {
		return analytics.Unknown
	}

	roi := frame.Region(r)
	defer roi.Close()
	gray := vision.Gray(roi)
	defer gray.Close()

	desc, err := a.features.Describe(gray)
	if err != nil {
		return analytics.Unknown
	}
	defer desc.Close()

	label, _ := a.templates.Recognize(desc)
	return label
}

func (a *Annotator) Close() error {
	return a.motion.Close()
}
