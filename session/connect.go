package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// RetryPolicy bounds connection establishment: Attempts tries, each limited
// by Timeout, with Backoff between them.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Timeout:  10 * time.Second,
		Backoff:  2 * time.Second,
	}
}

// Accept listens on addr and waits for one peer. The listener is closed as
// soon as a peer is accepted or the attempt times out.
func Accept(ctx context.Context, addr string, p RetryPolicy) (net.Conn, error) {
	return retry(ctx, "accept", addr, p, func(ctx context.Context) (net.Conn, error) {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		defer ln.Close()

		if tl, ok := ln.(*net.TCPListener); ok && p.Timeout > 0 {
			_ = tl.SetDeadline(time.Now().Add(p.Timeout))
		}

		// Unblock Accept when the caller gives up.
		stop := context.AfterFunc(ctx, func() {
			ln.Close()
		})
		defer stop()

		lgr.Logger.Info(
			"waiting for peer",
			slog.String("addr", addr),
		)
		return ln.Accept()
	})
}

func Dial(ctx context.Context, addr string, p RetryPolicy) (net.Conn, error) {
	return retry(ctx, "dial", addr, p, func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{Timeout: p.Timeout}
		return d.DialContext(ctx, "tcp", addr)
	})
}

func retry(ctx context.Context, op, addr string, p RetryPolicy, fn func(context.Context) (net.Conn, error)) (net.Conn, error) {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		conn, err := fn(ctx)
		if err == nil {
			lgr.Logger.Info(
				"peer connected",
				slog.String("op", op),
				slog.String("local", conn.LocalAddr().String()),
				slog.String("remote", conn.RemoteAddr().String()),
			)
			return conn, nil
		}

		if ctx.Err() != nil {
			return nil, model.NewError(model.ConnectionError, model.CauseOther, op, addr, ctx.Err())
		}

		lastErr = model.NewError(model.ConnectionError, model.NetCause(err), op, addr, err)
		lgr.Logger.Warn(
			"connection attempt failed",
			slog.String("op", op),
			slog.String("addr", addr),
			slog.Int("attempt", attempt),
			slog.Int("attempts", p.Attempts),
			slog.Any("error", err),
		)

		if attempt == p.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, model.NewError(model.ConnectionError, model.CauseOther, op, addr, ctx.Err())
		case <-time.After(p.Backoff):
		}
	}

	return nil, model.NewError(model.ConnectionError, model.CauseExhausted, op, addr,
		fmt.Errorf("gave up after %d attempts: %w", p.Attempts, lastErr))
}
