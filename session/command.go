package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

type Switcher interface {
	Switch(path string) (bool, error)
}

// CommandChannel reads control text from the device side of a stream
// connection and dispatches it. Unknown commands are logged and dropped;
// only a read failure ends the channel.
type CommandChannel struct {
	r        io.Reader
	allow    []string
	camera   Switcher
	endpoint string

	handled atomic.Int64
	ignored atomic.Int64
}

func NewCommandChannel(r io.Reader, allow []string, camera Switcher, endpoint string) *CommandChannel {
	return &CommandChannel{
		r:        r,
		allow:    allow,
		camera:   camera,
		endpoint: endpoint,
	}
}

// Run blocks reading commands. The reader has to be closed to unblock it;
// after ctx is cancelled the resulting read error is not reported.
func (c *CommandChannel) Run(ctx context.Context) error {
	buf := make([]byte, protocol.MaxCommandRead)
	cmds := protocol.NewCommandBuffer(c.allow)
	for {
		n, err := c.r.Read(buf)
		if n > 0 {
			for _, cmd := range cmds.Feed(buf[:n]) {
				c.Dispatch(cmd)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			for _, cmd := range cmds.Flush() {
				c.Dispatch(cmd)
			}
			cause := model.NetCause(err)
			if cause != model.CauseTimeout {
				cause = model.CauseLost
			}
			return model.NewError(model.ConnectionError, cause, "read command", c.endpoint,
				fmt.Errorf("%w: %v", protocol.ErrConnectionLost, err))
		}
	}
}

func (c *CommandChannel) Dispatch(cmd protocol.Command) {
	switch cmd.Kind {
	case protocol.CommandSwitchCamera:
		changed, err := c.camera.Switch(cmd.Arg)
		if err != nil {
			c.ignored.Add(1)
			lgr.Logger.Warn(
				"camera switch rejected",
				slog.String("path", cmd.Arg),
				slog.Any("error", err),
			)
			return
		}
		c.handled.Add(1)
		if !changed {
			lgr.Logger.Info(
				"camera already active",
				slog.String("path", cmd.Arg),
			)
		}

	case protocol.CommandUnknown:
		c.ignored.Add(1)
		lgr.Logger.Warn(
			"unknown command ignored",
			slog.String("command", cmd.Arg),
		)
	}
}

func (c *CommandChannel) Counts() (handled, ignored int64) {
	return c.handled.Load(), c.ignored.Load()
}
