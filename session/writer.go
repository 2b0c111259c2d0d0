package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
)

const DefaultQueueDepth = 32

var ErrWriterClosed = xerrors.New("writer closed")

// Writer is the single owner of a connection's write side. Producers submit
// encoded frames to one bounded FIFO, so submission order is wire order and a
// full queue blocks the producer.
type Writer struct {
	w          io.Writer
	endpoint   string
	maxPayload int
	queue      chan outbound
	done       chan struct{}

	mu  sync.Mutex
	err error

	video atomic.Int64
	audio atomic.Int64
}

type outbound struct {
	tag protocol.Tag
	buf []byte
}

func NewWriter(w io.Writer, depth, maxPayload int) *Writer {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	endpoint := ""
	if conn, ok := w.(net.Conn); ok && conn.RemoteAddr() != nil {
		endpoint = conn.RemoteAddr().String()
	}
	return &Writer{
		w:          w,
		endpoint:   endpoint,
		maxPayload: maxPayload,
		queue:      make(chan outbound, depth),
		done:       make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled or a write fails. It must be
// called exactly once.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.setErr(ErrWriterClosed)
			return nil

		case out := <-w.queue:
			if _, err := w.w.Write(out.buf); err != nil {
				cause := model.NetCause(err)
				if cause != model.CauseTimeout {
					cause = model.CauseLost
				}
				err = model.NewError(model.ConnectionError, cause, "write frame", w.endpoint,
					fmt.Errorf("%w: %v", protocol.ErrConnectionLost, err))
				w.setErr(err)
				return err
			}

			switch out.tag {
			case protocol.TagVideo:
				w.video.Add(1)
			case protocol.TagAudio:
				w.audio.Add(1)
			}
		}
	}
}

// SendFrame validates and encodes f on the caller's goroutine, then queues it.
func (w *Writer) SendFrame(ctx context.Context, f protocol.Frame) error {
	buf, err := protocol.AppendFrame(nil, f, w.maxPayload)
	if err != nil {
		return err
	}
	return w.enqueue(ctx, outbound{tag: f.Tag, buf: buf})
}

func (w *Writer) SendCommand(ctx context.Context, c protocol.Command) error {
	return w.enqueue(ctx, outbound{buf: c.Encode()})
}

func (w *Writer) enqueue(ctx context.Context, out outbound) error {
	select {
	case <-w.done:
		return w.Err()
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return w.Err()
	case w.queue <- out:
		return nil
	}
}

// Err reports why the writer stopped, or nil while it is running.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) Sent() (video, audio int64) {
	return w.video.Load(), w.audio.Load()
}

func (w *Writer) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
