package mode

import (
	"context"
	"log/slog"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/pipeline"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/data"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// Processor runs one mode until ctx is cancelled or the mode finishes. args
// are the command-line arguments after the mode name.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.SessionStats:
		store("session", stats, datasvc.NewSessionStats(stats))
	case model.FramerStats:
		store("framer", stats, datasvc.NewFramerStats(stats))
	case model.StreamerStats:
		store("streamer", stats, datasvc.NewStreamerStats(stats))
	case model.AlerterStats:
		store("alerter", stats, datasvc.NewAlerterStats(stats))
	case model.DeviceStats:
		store("device", stats, datasvc.NewDeviceStats(stats))
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func store(kind string, stats interface{}, err error) {
	if err != nil {
		lgr.Logger.Error(
			"failed to store stats",
			slog.String("kind", kind),
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
		return
	}
	lgr.Logger.Debug(
		"stats stored",
		slog.String("kind", kind),
		slog.Any("stats", stats),
	)
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
