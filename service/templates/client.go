package templates

import (
	"context"
	"net"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
)

const DefaultClientTimeout = 5 * time.Second

// Client sends one request per short-lived connection. Failures are
// *model.Error values whose Cause tells timeout, refused and other apart.
type Client struct {
	Timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{Timeout: timeout}
}

func (c *Client) Enroll(ctx context.Context, addr, name string, image []byte) error {
	buf, err := protocol.EncodeEnroll(protocol.EnrollRequest{Name: name, Image: image})
	if err != nil {
		return err
	}
	return c.send(ctx, "send enroll", addr, buf)
}

func (c *Client) Delete(ctx context.Context, addr, name string) error {
	buf, err := protocol.EncodeDelete(protocol.DeleteRequest{Name: name})
	if err != nil {
		return err
	}
	return c.send(ctx, "send delete", addr, buf)
}

func (c *Client) send(ctx context.Context, op, addr string, buf []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return model.NewError(model.ConnectionError, model.NetCause(err), op, addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(buf); err != nil {
		return model.NewError(model.ConnectionError, model.NetCause(err), op, addr, err)
	}

	// Half-close so the server sees the end of the request.
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return model.NewError(model.ConnectionError, model.NetCause(err), op, addr, err)
		}
	}
	return nil
}
