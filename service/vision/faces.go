package vision

import (
	"fmt"
	"image"
	"log/slog"
	"os"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// FaceDetector wraps a Haar frontal-face cascade.
type FaceDetector struct {
	classifier gocv.CascadeClassifier
	path       string
}

// NewFaceDetector loads the first cascade file found in paths.
func NewFaceDetector(paths []string) (*FaceDetector, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		classifier := gocv.NewCascadeClassifier()
		if !classifier.Load(path) {
			classifier.Close()
			continue
		}

		lgr.Logger.Info(
			"face cascade loaded",
			slog.String("path", path),
		)
		return &FaceDetector{classifier: classifier, path: path}, nil
	}
	return nil, fmt.Errorf("no usable face cascade in %v", paths)
}

// Detect finds faces in a grayscale frame.
func (d *FaceDetector) Detect(gray gocv.Mat) []image.Rectangle {
	return d.classifier.DetectMultiScaleWithParams(gray, 1.1, 3, 0, image.Pt(40, 40), image.Pt(0, 0))
}

func (d *FaceDetector) Close() error {
	return d.classifier.Close()
}

// Gray converts a BGR frame. The caller owns the returned Mat.
func Gray(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	return gray
}
