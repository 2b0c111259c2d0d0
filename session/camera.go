package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

var (
	ErrCameraOpen       = xerrors.New("camera open failed")
	ErrCameraNotAllowed = xerrors.New("camera path not in allow-list")
	ErrCameraClosed     = xerrors.New("camera closed")
)

type Opener[D io.Closer] func(path string) (D, error)

// Camera guards the active capture handle. The capture loop and the command
// handler share its lock; a switch only records the new target and the handle
// is re-opened lazily by the next Use.
type Camera[D io.Closer] struct {
	mu     sync.Mutex
	allow  []string
	path   string
	dev    D
	opened bool
	closed bool
	opener Opener[D]
}

func NewCamera[D io.Closer](allow []string, initial string, opener Opener[D]) (*Camera[D], error) {
	if !slices.Contains(allow, initial) {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotAllowed, initial)
	}
	return &Camera[D]{
		allow:  slices.Clone(allow),
		path:   initial,
		opener: opener,
	}, nil
}

// Switch selects path as the active camera. It reports whether anything
// changed: switching to the current path is a no-op.
func (c *Camera[D]) Switch(path string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !slices.Contains(c.allow, path) {
		return false, fmt.Errorf("%w: %s", ErrCameraNotAllowed, path)
	}
	if path == c.path {
		return false, nil
	}

	c.release()
	lgr.Logger.Info(
		"camera switched",
		slog.String("from", c.path),
		slog.String("to", path),
	)
	c.path = path
	return true, nil
}

// Use runs fn with the open handle, opening it first if needed.
func (c *Camera[D]) Use(fn func(path string, dev D) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCameraClosed
	}
	if !c.opened {
		dev, err := c.opener(c.path)
		if err != nil {
			return model.NewError(model.ResourceError, model.CauseOther, "open camera", c.path,
				fmt.Errorf("%w: %v", ErrCameraOpen, err))
		}
		c.dev = dev
		c.opened = true
		lgr.Logger.Info(
			"camera opened",
			slog.String("path", c.path),
		)
	}
	return fn(c.path, c.dev)
}

// Reset drops the handle so the next Use re-opens the same path.
func (c *Camera[D]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
}

// Close releases the handle for good; later calls to Use fail.
func (c *Camera[D]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.release()
}

func (c *Camera[D]) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

func (c *Camera[D]) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *Camera[D]) release() error {
	if !c.opened {
		return nil
	}
	var zero D
	dev := c.dev
	c.dev = zero
	c.opened = false
	return dev.Close()
}

// CaptureRetry decides how a capture loop reacts to camera failures. Only
// consecutive open failures count toward Attempts; a read failure means the
// device did open, so it resets the count and just forces a reopen.
type CaptureRetry struct {
	Attempts int
	Backoff  time.Duration

	failures int
}

// Failed records err. It returns how long to wait before the next attempt,
// or exhausted once Attempts opens in a row have failed.
func (r *CaptureRetry) Failed(err error) (wait time.Duration, exhausted bool) {
	if !errors.Is(err, ErrCameraOpen) {
		r.failures = 0
		return r.Backoff, false
	}
	r.failures++
	if r.Attempts > 0 && r.failures >= r.Attempts {
		return 0, true
	}
	return r.Backoff, false
}

func (r *CaptureRetry) Succeeded() {
	r.failures = 0
}

func (r *CaptureRetry) Failures() int {
	return r.failures
}
