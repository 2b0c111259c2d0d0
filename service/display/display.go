package display

import (
	"gocv.io/x/gocv"
)

type IService interface {
	// Show renders frame and reports false once the user asked to quit.
	Show(frame gocv.Mat) bool
	Close() error
}

type window struct {
	w *gocv.Window
}

// NewWindow opens a desktop window. Show must be called from one goroutine.
func NewWindow(title string) IService {
	w := gocv.NewWindow(title)
	w.ResizeWindow(640, 480)
	return &window{w: w}
}

func (d *window) Show(frame gocv.Mat) bool {
	d.w.IMShow(frame)
	key := d.w.WaitKey(1)
	return key != 'q' && key != 27
}

func (d *window) Close() error {
	return d.w.Close()
}

type headless struct{}

// NewHeadless discards frames.
func NewHeadless() IService {
	return headless{}
}

func (headless) Show(gocv.Mat) bool { return true }

func (headless) Close() error { return nil }
