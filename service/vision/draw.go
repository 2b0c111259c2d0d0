package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/analytics"
)

// gocv maps RGBA onto BGR scalars.
var (
	blue  = color.RGBA{0, 0, 255, 0}
	green = color.RGBA{0, 255, 0, 0}
	red   = color.RGBA{255, 0, 0, 0}
)

func DrawPolygons(img *gocv.Mat, polys [][]image.Point) {
	if len(polys) == 0 {
		return
	}
	pv := gocv.NewPointsVectorFromPoints(polys)
	defer pv.Close()
	gocv.Polylines(img, pv, true, blue, 2)
}

// DrawCount writes "N pkg/s" at the bottom-left corner.
func DrawCount(img *gocv.Mat, count int) {
	gocv.PutText(img, fmt.Sprintf("%d pkg/s", count), image.Pt(10, img.Rows()-10),
		gocv.FontHersheySimplex, 0.7, red, 2)
}

// DrawFace boxes a face and writes its label above it. Known faces are
// green, unknown ones red.
func DrawFace(img *gocv.Mat, r image.Rectangle, label string) {
	c := green
	if label == analytics.Unknown {
		c = red
	}
	gocv.Rectangle(img, r, c, 2)
	gocv.PutText(img, label, image.Pt(r.Min.X, r.Min.Y-10),
		gocv.FontHersheySimplex, 0.5, c, 2)
}
