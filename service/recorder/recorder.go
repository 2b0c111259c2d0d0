package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/vision"
)

var ErrClosed = errors.New("recorder closed")

// FileName is the recording name for a session started at t.
func FileName(t time.Time) string {
	return t.Format("20060102_150405") + ".avi"
}

// Recorder writes one session's frames, resized to the recording size, into
// a single AVI file.
type Recorder struct {
	p      config.RecordingParameters
	path   string
	mu     sync.Mutex
	writer *gocv.VideoWriter
	frames int
	closed bool
}

func New(folder string, p config.RecordingParameters, started time.Time) (*Recorder, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, model.NewError(model.IOError, model.CauseOther, "create recordings folder", folder, err)
	}

	path := filepath.Join(folder, FileName(started))
	writer, err := gocv.VideoWriterFile(path, p.Codec, float64(p.FPS), p.Width, p.Height, true)
	if err != nil {
		return nil, model.NewError(model.ResourceError, model.CauseOther, "open recording", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, model.NewError(model.ResourceError, model.CauseOther, "open recording", path,
			fmt.Errorf("codec %s unavailable", p.Codec))
	}

	lgr.Logger.Info(
		"recording started",
		slog.String("path", path),
	)
	return &Recorder{p: p, path: path, writer: writer}, nil
}

func (r *Recorder) Path() string {
	return r.path
}

// Write resizes frame when needed and appends it.
func (r *Recorder) Write(frame gocv.Mat) error {
	resized, err := vision.Fit(frame, r.p.Width, r.p.Height)
	defer resized.Close()
	if err != nil {
		return model.NewError(model.IOError, model.CauseOther, "resize frame", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	err = r.writer.Write(resized)
	if err != nil {
		return model.NewError(model.IOError, model.CauseOther, "write frame", r.path, err)
	}
	r.frames++
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	lgr.Logger.Info(
		"recording finished",
		slog.String("path", r.path),
		slog.Int("frames", r.frames),
	)
	return r.writer.Close()
}
