package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
)

var cameras = []string{"/dev/video0", "/dev/video2"}

type fakeDevice struct {
	path   string
	closed bool
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []*fakeDevice
	fail   map[string]bool
}

func (o *fakeOpener) open(path string) (*fakeDevice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[path] {
		return nil, errors.New("no such device")
	}
	d := &fakeDevice{path: path}
	o.opened = append(o.opened, d)
	return d, nil
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func newTestCamera(t *testing.T) (*Camera[*fakeDevice], *fakeOpener) {
	t.Helper()
	o := &fakeOpener{}
	c, err := NewCamera(cameras, cameras[0], o.open)
	if err != nil {
		t.Fatal(err)
	}
	return c, o
}

func use(t *testing.T, c *Camera[*fakeDevice]) *fakeDevice {
	t.Helper()
	var got *fakeDevice
	if err := c.Use(func(_ string, d *fakeDevice) error {
		got = d
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return got
}

func TestCameraOpensLazilyAndReuses(t *testing.T) {
	c, o := newTestCamera(t)
	if c.Opened() || o.count() != 0 {
		t.Fatal("camera opened before first use")
	}

	first := use(t, c)
	second := use(t, c)
	if first != second || o.count() != 1 {
		t.Fatalf("handle re-opened: %d opens", o.count())
	}
	if first.path != "/dev/video0" {
		t.Fatalf("opened %s", first.path)
	}
}

func TestCameraSwitchDefersReopen(t *testing.T) {
	c, o := newTestCamera(t)
	old := use(t, c)

	changed, err := c.Switch("/dev/video2")
	if err != nil || !changed {
		t.Fatalf("switch: %v %v", changed, err)
	}
	if !old.closed {
		t.Fatal("old handle not released on switch")
	}
	if c.Opened() || o.count() != 1 {
		t.Fatal("switch re-opened synchronously")
	}
	if c.Current() != "/dev/video2" {
		t.Fatalf("current %s", c.Current())
	}

	if d := use(t, c); d.path != "/dev/video2" {
		t.Fatalf("re-opened %s", d.path)
	}
}

func TestCameraSwitchToSamePathIsNoop(t *testing.T) {
	c, o := newTestCamera(t)
	d := use(t, c)

	changed, err := c.Switch("/dev/video0")
	if err != nil || changed {
		t.Fatalf("switch: %v %v", changed, err)
	}
	if d.closed || !c.Opened() || o.count() != 1 {
		t.Fatal("same-path switch touched the handle")
	}
}

func TestCameraSwitchRejectsUnknownPath(t *testing.T) {
	c, _ := newTestCamera(t)
	d := use(t, c)

	if _, err := c.Switch("/dev/video7"); !errors.Is(err, ErrCameraNotAllowed) {
		t.Fatalf("got %v", err)
	}
	if d.closed || c.Current() != "/dev/video0" {
		t.Fatal("rejected switch changed the camera")
	}
}

func TestCameraOpenFailureIsResourceError(t *testing.T) {
	o := &fakeOpener{fail: map[string]bool{"/dev/video0": true}}
	c, _ := NewCamera(cameras, "/dev/video0", o.open)

	err := c.Use(func(string, *fakeDevice) error { return nil })
	if !errors.Is(err, ErrCameraOpen) || !model.IsKind(err, model.ResourceError) {
		t.Fatalf("got %v", err)
	}
	if c.Opened() {
		t.Fatal("failed open left camera marked open")
	}
}

func TestCameraResetAndClose(t *testing.T) {
	c, o := newTestCamera(t)
	d := use(t, c)
	c.Reset()
	if !d.closed || c.Opened() {
		t.Fatal("reset did not release the handle")
	}
	use(t, c)
	if o.count() != 2 {
		t.Fatalf("%d opens", o.count())
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal("second close failed")
	}
	err := c.Use(func(string, *fakeDevice) error { return nil })
	if !errors.Is(err, ErrCameraClosed) || o.count() != 2 {
		t.Fatalf("use after close: %v, %d opens", err, o.count())
	}
}

func TestNewCameraRequiresAllowedInitialPath(t *testing.T) {
	if _, err := NewCamera(cameras, "/dev/video9", (&fakeOpener{}).open); !errors.Is(err, ErrCameraNotAllowed) {
		t.Fatalf("got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCommandChannelIgnoresUnknownCommand(t *testing.T) {
	c, _ := newTestCamera(t)
	d := use(t, c)

	device, viewer := net.Pipe()
	defer device.Close()

	ch := NewCommandChannel(device, cameras, c, "pipe")
	result := make(chan error, 1)
	go func() { result <- ch.Run(context.Background()) }()

	if _, err := viewer.Write([]byte("path-not-in-allowlist\n")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { _, ignored := ch.Counts(); return ignored == 1 })
	if d.closed || c.Current() != "/dev/video0" {
		t.Fatal("unknown command changed the camera")
	}

	// still open: a valid command on the same connection is honoured
	if _, err := viewer.Write(protocol.SwitchCamera("/dev/video2").Encode()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.Current() == "/dev/video2" })

	select {
	case err := <-result:
		t.Fatalf("channel ended early: %v", err)
	default:
	}

	viewer.Close()
	select {
	case err := <-result:
		if !errors.Is(err, protocol.ErrConnectionLost) || !model.IsKind(err, model.ConnectionError) {
			t.Fatalf("got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not notice the closed connection")
	}
}

func TestCommandChannelJoinsSplitReads(t *testing.T) {
	c, _ := newTestCamera(t)
	use(t, c)

	r := iotest.OneByteReader(strings.NewReader("/dev/video2\n/dev/vid"))
	ch := NewCommandChannel(r, cameras, c, "pipe")
	if err := ch.Run(context.Background()); !errors.Is(err, protocol.ErrConnectionLost) {
		t.Fatalf("got %v", err)
	}
	if c.Current() != "/dev/video2" {
		t.Fatalf("camera %q", c.Current())
	}
	// the unterminated tail is reported once the stream ends
	if handled, ignored := ch.Counts(); handled != 1 || ignored != 1 {
		t.Fatalf("handled %d ignored %d", handled, ignored)
	}
}

func TestCommandChannelQuietAfterCancel(t *testing.T) {
	c, _ := newTestCamera(t)
	device, viewer := net.Pipe()
	defer viewer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := NewCommandChannel(device, cameras, c, "pipe")
	result := make(chan error, 1)
	go func() { result <- ch.Run(ctx) }()

	cancel()
	device.Close()
	if err := <-result; err != nil {
		t.Fatalf("got %v", err)
	}
}

func TestCaptureRetryCountsOnlyOpenFailures(t *testing.T) {
	r := CaptureRetry{Attempts: 3, Backoff: 50 * time.Millisecond}
	openErr := model.NewError(model.ResourceError, model.CauseOther, "open camera", "/dev/video0", ErrCameraOpen)
	readErr := errors.New("camera read failed")

	for i := 0; i < 10; i++ {
		wait, exhausted := r.Failed(readErr)
		if exhausted || wait != r.Backoff {
			t.Fatalf("read failure %d: wait %v exhausted %v", i, wait, exhausted)
		}
	}

	r.Failed(openErr)
	r.Failed(openErr)
	// a reopen that succeeded before the read failed starts the count over
	r.Failed(readErr)
	if r.Failures() != 0 {
		t.Fatalf("failures %d after a successful open", r.Failures())
	}

	r.Failed(openErr)
	r.Failed(openErr)
	if _, exhausted := r.Failed(openErr); !exhausted {
		t.Fatal("three open failures in a row not exhausted")
	}
	r.Succeeded()
	if r.Failures() != 0 {
		t.Fatal("success did not reset the count")
	}
}
