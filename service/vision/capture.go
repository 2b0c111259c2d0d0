package vision

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// CameraOpener returns a function that opens a V4L2 device with the MJPG
// fourcc at the configured size and rate.
func CameraOpener(p config.CaptureParameters) func(path string) (*gocv.VideoCapture, error) {
	return func(path string) (*gocv.VideoCapture, error) {
		webcam, err := gocv.OpenVideoCapture(path)
		if err != nil {
			return nil, err
		}
		if !webcam.IsOpened() {
			webcam.Close()
			return nil, fmt.Errorf("camera %s did not open", path)
		}

		webcam.Set(gocv.VideoCaptureFOURCC, float64(webcam.ToCodec("MJPG")))
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(p.Width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(p.Height))
		webcam.Set(gocv.VideoCaptureFPS, float64(p.FPS))
		webcam.Set(gocv.VideoCaptureBufferSize, 1)

		lgr.Logger.Info(
			"camera opened",
			slog.String("path", path),
			slog.Int("width", int(webcam.Get(gocv.VideoCaptureFrameWidth))),
			slog.Int("height", int(webcam.Get(gocv.VideoCaptureFrameHeight))),
		)
		return webcam, nil
	}
}

// Read grabs one frame into dst. An empty frame counts as a failed read.
func Read(webcam *gocv.VideoCapture, dst *gocv.Mat) bool {
	return webcam.Read(dst) && !dst.Empty()
}

// Fit resizes src to w x h into a new Mat owned by the caller.
func Fit(src gocv.Mat, w, h int) (gocv.Mat, error) {
	dst := gocv.NewMat()
	if src.Cols() == w && src.Rows() == h {
		src.CopyTo(&dst)
		return dst, nil
	}
	err := gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	if err != nil {
		dst.Close()
		return gocv.NewMat(), err
	}
	return dst, nil
}
