package mode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/pipeline"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/audio"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/templates"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/vision"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/session"
)

// Device runs the capture side: it dials the viewer, streams annotated video
// and microphone audio, obeys camera commands, and serves template
// enrollment and deletion until the session ends or ctx is cancelled.
func Device(canxCtx context.Context, svcs pipeline.ServicesFactory, _ []string) error {
	cfgSvc := svcs.CfgSvc
	ap := cfgSvc.GetAnalyticsParameters()

	// Never closed: stragglers past the shutdown period must not panic.
	streams := newStreams(svcs)
	errorStream, statsStream := streams.Errors, streams.Stats

	features := vision.NewFeatures(ap.MatchDistance)
	tmpls := templates.NewStore(cfgSvc.GetTemplatesFolder(), features, ap.MinScore)
	if err := tmpls.Load(); err != nil {
		lgr.Logger.Warn(
			"templates not loaded",
			slog.String("dir", cfgSvc.GetTemplatesFolder()),
			slog.Any("error", err),
		)
	}
	svcs.TemplatesSvc = tmpls

	faces, err := vision.NewFaceDetector(ap.CascadePaths)
	if err != nil {
		lgr.Logger.Warn(
			"face recognition disabled",
			slog.Any("error", err),
		)
	}
	annotator := pipeline.NewAnnotator(ap, faces, features, tmpls)

	camera, err := session.NewCamera(cfgSvc.GetCameraDevices(), cfgSvc.GetDefaultCamera(),
		vision.CameraOpener(cfgSvc.GetCaptureParameters()))
	if err != nil {
		annotator.Close()
		return err
	}

	sess := session.New(session.RoleDevice, cfgSvc.GetViewerAddress(), retryPolicy(cfgSvc))
	if err := sess.Start(canxCtx); err != nil {
		annotator.Close()
		camera.Close()
		return err
	}
	publishSession(svcs, sess, "streaming")

	ctx := sess.Context()
	conn := sess.Conn()
	writer := session.NewWriter(conn, cfgSvc.GetWriterQueueDepth(), cfgSvc.GetMaxFrameSize())
	st := session.NewStages(sess)

	// Registration order is teardown order.
	src := openAudioCapture(ctx, cfgSvc.GetAudioParameters())
	sess.Resources().Add("audio capture", src)
	sess.Resources().Add("camera", camera)

	st.Run("writer", func() error {
		return writer.Run(ctx)
	})

	commands := session.NewCommandChannel(conn, cfgSvc.GetCameraDevices(), camera, conn.RemoteAddr().String())
	st.Run("commands", func() error {
		return commands.Run(ctx)
	})

	alertStream := make(chan pipeline.AlertData, 16)
	st.Optional("alerter", func() error {
		pipeline.Alerter(ctx, svcs, alertStream, errorStream, statsStream)
		return nil
	})

	st.Run("video", func() error {
		return pipeline.Framer(ctx, svcs, camera, annotator, writer, sess.ID(), errorStream, statsStream, alertStream)
	})

	if src != nil {
		st.Optional("audio", func() error {
			return pipeline.AudioStreamer(ctx, svcs, src, writer, statsStream)
		})
	}

	server := templates.NewServer(tmpls, protocol.DefaultMaxEnrollSize, templates.DefaultRequestTimeout)
	st.Optional("enroll", func() error {
		return server.ListenAndServeEnroll(ctx, fmt.Sprintf(":%d", cfgSvc.GetEnrollPort()))
	})
	st.Optional("delete", func() error {
		return server.ListenAndServeDelete(ctx, fmt.Sprintf(":%d", cfgSvc.GetDeletePort()))
	})
	if cfgSvc.GetTemplatesWatchEnabled() {
		st.Optional("watch", func() error {
			return tmpls.Watch(ctx)
		})
	}

	st.Optional("heartbeat", func() error {
		heartbeat(ctx, heartbeatSource{
			device:    cfgSvc.GetDeviceName(),
			sessionID: sess.ID(),
			camera:    camera.Current,
			templates: tmpls.Len,
		}, time.Duration(cfgSvc.GetStatsPeriodicTimeout())*time.Second, statsStream)
		return nil
	})

	streams.Pump(ctx.Done())

	lgr.Logger.Info(
		"device session ending",
		slog.String("id", sess.ID()),
		slog.Any("cause", sess.Err()),
	)
	sess.Stop()
	publishSession(svcs, sess, "closed")

	enrolled, deleted, rejected := server.Counts()
	handled, ignored := commands.Counts()
	lgr.Logger.Info(
		"device session summary",
		slog.Int64("enrolled", enrolled),
		slog.Int64("deleted", deleted),
		slog.Int64("rejected", rejected),
		slog.Int64("commands", handled),
		slog.Int64("ignored", ignored),
	)
	procStats(svcs.DataSvc, sessionStats(sess, writer, int(rejected+ignored)))

	done := st.Done()
	streams.Drain("device", shutdownPeriod(cfgSvc), done)

	select {
	case <-done:
		// Nothing uses the analytics objects any more.
		annotator.Close()
		if faces != nil {
			faces.Close()
		}
		tmpls.Close()
		features.Close()
	default:
	}

	if canxCtx.Err() != nil {
		return nil
	}
	return sess.Err()
}

// openAudioCapture returns nil when no matching microphone is available;
// the session then streams video only.
func openAudioCapture(ctx context.Context, p config.AudioParameters) audio.Source {
	dev, err := audio.FindCaptureDevice(ctx, p.DeviceHint)
	if err != nil {
		lgr.Logger.Warn(
			"audio capture disabled",
			slog.String("hint", p.DeviceHint),
			slog.Any("error", err),
		)
		return nil
	}

	src, err := audio.OpenCapture(ctx, dev, audio.FormatFrom(p))
	if err != nil {
		lgr.Logger.Warn(
			"audio capture disabled",
			slog.String("device", dev.Name),
			slog.Any("error", err),
		)
		return nil
	}

	lgr.Logger.Info(
		"audio capture started",
		slog.String("device", dev.Name),
		slog.String("hw", dev.HW()),
	)
	return src
}
