package mode

import (
	"log/slog"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/pipeline"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/session"
)

func retryPolicy(cfgSvc config.IService) session.RetryPolicy {
	p := cfgSvc.GetRetryParameters()
	return session.RetryPolicy{
		Attempts: p.Attempts,
		Timeout:  p.Timeout,
		Backoff:  p.Backoff,
	}
}

// newStreams routes stage reports to the data service.
func newStreams(svcs pipeline.ServicesFactory) *session.Streams {
	return session.NewStreams(
		func(e interface{}) { procError(svcs.DataSvc, e) },
		func(s interface{}) { procStats(svcs.DataSvc, s) },
	)
}

func publishSession(svcs pipeline.ServicesFactory, sess *session.Session, state string) {
	if svcs.EventsSvc == nil {
		return
	}
	err := svcs.EventsSvc.Publish(model.Event{
		Type:      model.EventSession,
		Device:    svcs.CfgSvc.GetDeviceName(),
		SessionID: sess.ID(),
		State:     state,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		lgr.Logger.Warn(
			"session event not published",
			slog.String("state", state),
			slog.Any("error", err),
		)
	}
}

func sessionStats(sess *session.Session, writer *session.Writer, errs int) model.SessionStats {
	stats := model.SessionStats{
		ID:       sess.ID(),
		Role:     string(sess.Role),
		Endpoint: sess.Endpoint,
		State:    sess.State().String(),
		Errors:   errs,
		Uptime:   int64(sess.Uptime().Seconds()),
	}
	if writer != nil {
		video, audio := writer.Sent()
		stats.VideoFrames = int(video)
		stats.AudioFrames = int(audio)
	}
	if err := sess.Err(); err != nil {
		stats.Errors++
	}
	return stats
}

func shutdownPeriod(cfgSvc config.IService) time.Duration {
	return time.Duration(cfgSvc.GetModeMaxShutdownTime()) * time.Second
}
