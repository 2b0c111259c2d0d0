package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/audio"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/session"
)

// AudioStreamer sends one AUDIO frame per captured chunk. It shares the
// session writer with the video framer, so the two streams interleave on
// whole frames only.
func AudioStreamer(canxCtx context.Context,
	svcs ServicesFactory,
	src audio.Source,
	writer *session.Writer,
	statsStream chan interface{}) error {
	format := audio.FormatFrom(svcs.CfgSvc.GetAudioParameters())
	chunk := make([]byte, format.ChunkBytes())

	var startTime = time.Now()
	var frames = 0
	var errs = 0

	defer func() {
		uptime := int64(time.Since(startTime).Seconds())
		rate := 0
		if uptime > 0 {
			rate = int(float64(frames) / float64(uptime))
		}
		statsStream <- model.StreamerStats{
			Name:   "audioStreamer",
			Device: svcs.CfgSvc.GetDeviceName(),
			Frames: frames,
			Errors: errs,
			Uptime: uptime,
			FPS:    rate,
		}
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"audio streamer context cancelled",
			)
			return nil
		default:
		}

		if err := src.Read(chunk); err != nil {
			if canxCtx.Err() != nil {
				return nil
			}
			errs++
			lgr.Logger.Warn(
				"audio capture stopped",
				slog.Any("error", err),
			)
			return err
		}

		err := writer.SendFrame(canxCtx, protocol.Frame{Tag: protocol.TagAudio, Payload: chunk})
		if err != nil {
			if canxCtx.Err() != nil {
				return nil
			}
			errs++
			return err
		}
		frames++
	}
}
