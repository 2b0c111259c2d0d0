package templates

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// DefaultRequestTimeout bounds one enroll/delete connection end to end.
const DefaultRequestTimeout = 10 * time.Second

// Server accepts enrollment and deletion requests for a store. Each listener
// handles one connection at a time.
type Server struct {
	store   IService
	maxSize int
	timeout time.Duration

	enrolled atomic.Int64
	deleted  atomic.Int64
	rejected atomic.Int64
}

func NewServer(store IService, maxSize int, timeout time.Duration) *Server {
	if maxSize <= 0 {
		maxSize = protocol.DefaultMaxEnrollSize
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Server{
		store:   store,
		maxSize: maxSize,
		timeout: timeout,
	}
}

func (s *Server) ListenAndServeEnroll(ctx context.Context, addr string) error {
	ln, err := listen(ctx, addr)
	if err != nil {
		return err
	}
	return s.ServeEnroll(ctx, ln)
}

func (s *Server) ListenAndServeDelete(ctx context.Context, addr string) error {
	ln, err := listen(ctx, addr)
	if err != nil {
		return err
	}
	return s.ServeDelete(ctx, ln)
}

// ServeEnroll takes ownership of ln and closes it when ctx is done.
func (s *Server) ServeEnroll(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln, "templates.enroll", s.handleEnroll)
}

// ServeDelete takes ownership of ln and closes it when ctx is done.
func (s *Server) ServeDelete(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln, "templates.delete", s.handleDelete)
}

// Counts reports handled requests since start.
func (s *Server) Counts() (enrolled, deleted, rejected int64) {
	return s.enrolled.Load(), s.deleted.Load(), s.rejected.Load()
}

func (s *Server) serve(ctx context.Context, ln net.Listener, op string, handle func(net.Conn) (string, error)) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	lgr.Logger.Info(
		"template server listening",
		slog.String("op", op),
		slog.String("addr", ln.Addr().String()),
	)

	tracer := otel.Tracer("templates")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				lgr.Logger.Info(
					"template server stopped",
					slog.String("op", op),
				)
				return nil
			}
			lgr.Logger.Warn(
				"template server accept failed",
				slog.String("op", op),
				slog.Any("error", err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		_, span := tracer.Start(ctx, op,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("peer", conn.RemoteAddr().String())),
		)

		_ = conn.SetDeadline(time.Now().Add(s.timeout))
		name, err := handle(conn)
		conn.Close()

		span.SetAttributes(attribute.String("template", name))
		if err != nil {
			s.rejected.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, "request rejected")
			lgr.Logger.Error(
				"template request rejected",
				slog.String("op", op),
				slog.String("peer", conn.RemoteAddr().String()),
				slog.Any("error", err),
			)
		}
		span.End()
	}
}

func (s *Server) handleEnroll(conn net.Conn) (string, error) {
	req, err := protocol.DecodeEnroll(conn, s.maxSize)
	if err != nil {
		return "", err
	}
	if err := s.store.Enroll(req.Name, req.Image); err != nil {
		return req.Name, err
	}
	s.enrolled.Add(1)
	return req.Name, nil
}

func (s *Server) handleDelete(conn net.Conn) (string, error) {
	req, err := protocol.DecodeDelete(conn)
	if err != nil {
		return "", err
	}
	if err := s.store.Delete(req.Name); err != nil {
		return req.Name, err
	}
	s.deleted.Add(1)
	return req.Name, nil
}

func listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
