package session

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// Console reads viewer commands, one per line:
//
//	enroll <name>   enroll the last received frame as a face template
//	forget <name>   delete a face template
//	<camera path>   switch the device camera
//
// Template failures are logged and the console goes on; a failed camera
// switch means the stream is gone and ends it.
type Console struct {
	Switch func(ctx context.Context, path string) error
	Enroll func(ctx context.Context, name string) error
	Forget func(ctx context.Context, name string) error
}

// Run returns at EOF or once a camera switch fails. A read blocked on a
// terminal is abandoned when the session ends.
func (c Console) Run(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch {
		case fields[0] == "enroll" && len(fields) == 2:
			c.template(ctx, "enroll", fields[1], c.Enroll)
		case fields[0] == "forget" && len(fields) == 2:
			c.template(ctx, "forget", fields[1], c.Forget)
		case fields[0] == "enroll" || fields[0] == "forget":
			lgr.Logger.Warn(
				"usage: " + fields[0] + " <name>",
			)
		default:
			path := strings.Join(fields, " ")
			if err := c.Switch(ctx, path); err != nil {
				return
			}
			lgr.Logger.Info(
				"camera command sent",
				slog.String("camera", path),
			)
		}
	}
}

func (c Console) template(ctx context.Context, op, name string, fn func(context.Context, string) error) {
	if fn == nil {
		return
	}
	if err := fn(ctx, name); err != nil {
		lgr.Logger.Warn(
			"template command failed",
			slog.String("op", op),
			slog.String("name", name),
			slog.Any("error", err),
		)
		return
	}
	lgr.Logger.Info(
		"template command sent",
		slog.String("op", op),
		slog.String("name", name),
	)
}
