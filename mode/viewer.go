package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/pipeline"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/audio"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/display"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/recorder"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/templates"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/session"
)

// Viewer waits for a device to connect, selects its camera, then renders,
// records and plays the stream until the device goes away, the window is
// closed, or ctx is cancelled.
//
// args: [device name] [camera path]. Without a device name the default
// device binding is used.
func Viewer(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	// The window must stay on one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cfgSvc := svcs.CfgSvc

	device, err := resolveDevice(svcs, args)
	if err != nil {
		return err
	}
	camera := cfgSvc.GetDefaultCamera()
	if len(args) > 1 {
		camera = args[1]
	}

	lgr.Logger.Info(
		"viewer starting",
		slog.String("device", device.Name),
		slog.Int("port", device.Port),
		slog.String("camera", camera),
	)

	streams := newStreams(svcs)
	errorStream, statsStream := streams.Errors, streams.Stats

	sess := session.New(session.RoleViewer, fmt.Sprintf(":%d", device.Port), retryPolicy(cfgSvc))
	if err := sess.Start(canxCtx); err != nil {
		return err
	}
	publishSession(svcs, sess, "streaming")

	ctx := sess.Context()
	conn := sess.Conn()

	// Registration order is teardown order.
	var audioOut chan []byte
	sink, err := audio.OpenPlayback(ctx, audio.FormatFrom(cfgSvc.GetAudioParameters()))
	if err != nil {
		lgr.Logger.Warn(
			"audio playback disabled",
			slog.Any("error", err),
		)
	} else {
		sess.Resources().Add("audio playback", sink)
		audioOut = make(chan []byte, cfgSvc.GetAudioParameters().QueueDepth)
	}

	rec, err := recorder.New(cfgSvc.GetRecordingsFolder(), cfgSvc.GetRecordingParameters(), time.Now())
	if err != nil {
		sess.Fail(err)
		return err
	}
	sess.Resources().Add("recording", rec)

	writer := session.NewWriter(conn, cfgSvc.GetWriterQueueDepth(), cfgSvc.GetMaxFrameSize())
	st := session.NewStages(sess)
	st.Run("writer", func() error {
		return writer.Run(ctx)
	})

	if err := writer.SendCommand(ctx, protocol.SwitchCamera(camera)); err != nil {
		sess.Fail(err)
		return err
	}

	latest := &session.LatestFrame{}
	go viewerConsole(svcs, device, writer, latest).Run(ctx, os.Stdin)

	videoOut := make(chan pipeline.FrameData, cfgSvc.GetDisplayQueueDepth())
	st.Run("receiver", func() error {
		return pipeline.Receiver(ctx, svcs, conn, pipeline.Recording(rec), latest, videoOut, audioOut, errorStream, statsStream)
	})
	if sink != nil {
		st.Optional("player", func() error {
			return pipeline.Player(ctx, sink, audioOut, statsStream)
		})
	}

	// The window stays on this goroutine; reports are handled elsewhere
	// until the renderer has returned.
	renderErr := streams.Foreground(func() error {
		disp := display.NewHeadless()
		if cfgSvc.GetDisplayEnabled() {
			disp = display.NewWindow(fmt.Sprintf("%s (%s)", device.Name, device.StreamAddr()))
		}
		defer disp.Close()
		return pipeline.Renderer(ctx, disp, videoOut, statsStream)
	})
	if renderErr != nil && !errors.Is(renderErr, pipeline.ErrViewerQuit) {
		sess.Fail(renderErr)
	}

	lgr.Logger.Info(
		"viewer session ending",
		slog.String("id", sess.ID()),
		slog.String("recording", rec.Path()),
		slog.Any("cause", sess.Err()),
	)
	sess.Stop()
	publishSession(svcs, sess, "closed")
	procStats(svcs.DataSvc, sessionStats(sess, nil, 0))

	streams.Drain("viewer", shutdownPeriod(cfgSvc), st.Done())

	if canxCtx.Err() != nil || errors.Is(renderErr, pipeline.ErrViewerQuit) {
		return nil
	}
	return sess.Err()
}

func resolveDevice(svcs pipeline.ServicesFactory, args []string) (model.Device, error) {
	if len(args) > 0 && args[0] != "" {
		return svcs.DataSvc.RetrieveDeviceByName(args[0])
	}
	return svcs.DataSvc.RetrieveDefaultDevice()
}

// viewerConsole maps typed commands to the device: camera paths go over the
// stream connection, template commands to the device's template ports.
func viewerConsole(svcs pipeline.ServicesFactory, device model.Device, writer *session.Writer, latest *session.LatestFrame) session.Console {
	cfgSvc := svcs.CfgSvc
	client := templates.NewClient(cfgSvc.GetClientTimeout())
	enrollAddr := net.JoinHostPort(device.Address, strconv.Itoa(cfgSvc.GetEnrollPort()))
	deleteAddr := net.JoinHostPort(device.Address, strconv.Itoa(cfgSvc.GetDeletePort()))

	return session.Console{
		Switch: func(ctx context.Context, path string) error {
			return writer.SendCommand(ctx, protocol.SwitchCamera(path))
		},
		Enroll: func(ctx context.Context, name string) error {
			image, err := pipeline.TemplateImage(latest.Get(), cfgSvc.GetRecordingParameters())
			if err != nil {
				return err
			}
			return client.Enroll(ctx, enrollAddr, name, image)
		},
		Forget: func(ctx context.Context, name string) error {
			return client.Delete(ctx, deleteAddr, name)
		},
	}
}
