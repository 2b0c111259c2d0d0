package session

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

type State int

const (
	Idle State = iota
	Connecting
	Streaming
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}

type Role string

const (
	// RoleDevice dials out to the viewer.
	RoleDevice Role = "device"
	// RoleViewer listens and accepts the device.
	RoleViewer Role = "viewer"
)

var ErrAlreadyStarted = xerrors.New("session already started")

type Connector func(ctx context.Context, addr string, p RetryPolicy) (net.Conn, error)

// Session is one device/viewer streaming connection plus the resources it
// owns. Start may be called again once the session is Closed.
type Session struct {
	Role     Role
	Endpoint string

	policy  RetryPolicy
	connect Connector

	mu        sync.Mutex
	id        string
	state     State
	conn      net.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	resources *Resources
	err       error
	started   time.Time
	done      chan struct{}
}

func New(role Role, endpoint string, p RetryPolicy) *Session {
	connect := Dial
	if role == RoleViewer {
		connect = Accept
	}
	return NewWithConnector(role, endpoint, p, connect)
}

func NewWithConnector(role Role, endpoint string, p RetryPolicy, connect Connector) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{
		Role:      role,
		Endpoint:  endpoint,
		policy:    p,
		connect:   connect,
		state:     Idle,
		resources: &Resources{},
		done:      done,
	}
}

// Start establishes the connection. On failure the session is Closed and the
// error is a ConnectionError; a half-initialized session is never returned.
func (s *Session) Start(parent context.Context) error {
	s.mu.Lock()
	if s.state == Connecting || s.state == Streaming || s.state == Closing {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.id = uuid.NewString()
	s.state = Connecting
	s.err = nil
	s.resources = &Resources{}
	s.done = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(parent)
	ctx, id := s.ctx, s.id
	s.mu.Unlock()

	spanCtx, span := otel.Tracer("session").Start(ctx, "session.start")
	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.String("session.role", string(s.Role)),
		attribute.String("session.endpoint", s.Endpoint),
	)
	defer span.End()

	lgr.Logger.Info(
		"session starting",
		slog.String("id", id),
		slog.String("role", string(s.Role)),
		slog.String("endpoint", s.Endpoint),
	)

	conn, err := s.connect(spanCtx, s.Endpoint, s.policy)
	if err == nil && ctx.Err() != nil {
		// Stopped while connecting.
		conn.Close()
		err = model.NewError(model.ConnectionError, model.CauseOther, "start", s.Endpoint, ctx.Err())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.Stop()
		return err
	}

	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		conn.Close()
		return model.NewError(model.ConnectionError, model.CauseOther, "start", s.Endpoint, context.Canceled)
	}
	s.conn = conn
	s.state = Streaming
	s.started = time.Now()
	s.mu.Unlock()

	lgr.Logger.Info(
		"session streaming",
		slog.String("id", id),
		slog.String("peer", conn.RemoteAddr().String()),
	)
	return nil
}

// Stop tears the session down in order: cancel the session context, shut the
// socket down both ways and close it, then release resources in the order
// they were added. Stop is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	switch s.state {
	case Idle, Closed:
		s.mu.Unlock()
		return
	case Closing:
		done := s.done
		s.mu.Unlock()
		<-done
		return
	}
	s.state = Closing
	conn, cancel, resources, done := s.conn, s.cancel, s.resources, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if conn != nil {
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.CloseRead()
			_ = tc.CloseWrite()
		}
		if err := conn.Close(); err != nil {
			lgr.Logger.Debug("socket close", slog.Any("error", err))
		}
	}

	resources.Release()

	s.mu.Lock()
	s.conn = nil
	s.state = Closed
	id, err := s.id, s.err
	s.mu.Unlock()
	close(done)

	lgr.Logger.Info(
		"session closed",
		slog.String("id", id),
		slog.Any("cause", err),
	)
}

// Fail records err as the reason the session ended and stops it. Only the
// first failure is kept.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.Stop()
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Conn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Context is cancelled when the session stops.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Session) Resources() *Resources {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources
}

// Done is closed once teardown has completed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}
