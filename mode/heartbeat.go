package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

type heartbeatSource struct {
	device    string
	sessionID string
	camera    func() string
	templates func() int
}

// heartbeat reports host load and device state every period until ctx is
// done.
func heartbeat(canxCtx context.Context, src heartbeatSource, period time.Duration, statsStream chan interface{}) {
	if period <= 0 {
		period = 30 * time.Second
	}
	startTime := time.Now()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"heartbeat context cancelled",
			)
			return

		case <-ticker.C:
			stats := model.DeviceStats{
				Device:    src.device,
				SessionID: src.sessionID,
				Camera:    src.camera(),
				Templates: src.templates(),
				Uptime:    int64(time.Since(startTime).Seconds()),
			}

			// Sampling over a zero interval compares against the previous call.
			if pct, err := cpu.PercentWithContext(canxCtx, 0, false); err == nil && len(pct) > 0 {
				stats.CPUPercent = pct[0]
			} else if err != nil {
				lgr.Logger.Debug("cpu sample failed", slog.Any("error", err))
			}
			if vm, err := mem.VirtualMemoryWithContext(canxCtx); err == nil {
				stats.MemPercent = vm.UsedPercent
			} else {
				lgr.Logger.Debug("memory sample failed", slog.Any("error", err))
			}

			select {
			case <-canxCtx.Done():
				return
			case statsStream <- stats:
			}
		}
	}
}
