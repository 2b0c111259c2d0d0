package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/analytics"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// Alerter turns analytics results into published events. Alerts held back
// by the cool-downs are dropped. It owns every Mat it
// receives, including those still queued when ctx is cancelled.
func Alerter(canxCtx context.Context,
	svcs ServicesFactory,
	in chan AlertData,
	errorStream chan interface{},
	statsStream chan interface{}) {
	p := svcs.CfgSvc.GetEventsParameters()
	folder := svcs.CfgSvc.GetRecordingsFolder()
	gate := analytics.NewAlertGate(p.CountCoolDown, p.CoolDown)

	var startTime = time.Now()
	var alerts = 0
	var errs = 0

	defer func() {
		statsStream <- model.AlerterStats{
			Name:   "eventAlerter",
			Alerts: alerts,
			Errors: errs,
			Uptime: int64(time.Since(startTime).Seconds()),
		}
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"alerter context cancelled",
			)
			for {
				select {
				case alert := <-in:
					alert.Mat.Close()
				default:
					return
				}
			}

		case alert := <-in:
			allowed := gate.AllowLabel(alert.Label, alert.Timestamp)
			if alert.Type == model.EventBoxCount {
				allowed = gate.AllowCount(alert.Timestamp)
			}
			if !allowed {
				alert.Mat.Close()
				continue
			}

			event := model.Event{
				Type:      alert.Type,
				Device:    alert.Device,
				SessionID: alert.SessionID,
				Count:     alert.Count,
				Label:     alert.Label,
				Timestamp: alert.Timestamp.Unix(),
			}

			if p.Snapshots && alert.Type == model.EventFace && !alert.Mat.Empty() {
				path, err := snapshot(folder, alert)
				if err != nil {
					errs++
					errorStream <- model.GenError("device_alerter",
						err,
						map[string]interface{}{"type": alert.Type, "label": alert.Label},
						"error storing alert snapshot")
				} else {
					event.Snapshot = path
				}
			}
			alert.Mat.Close()

			lgr.Logger.Info(
				"alert detected",
				slog.String("type", string(alert.Type)),
				slog.String("device", alert.Device),
				slog.String("label", alert.Label),
				slog.Int("count", alert.Count),
				slog.Time("timestamp", alert.Timestamp),
			)

			if svcs.EventsSvc == nil {
				alerts++
				continue
			}
			if err := svcs.EventsSvc.Publish(event); err != nil {
				errs++
				errorStream <- model.GenError("device_alerter",
					err,
					map[string]interface{}{"type": alert.Type},
					"error publishing event")
				continue
			}
			alerts++
		}
	}
}

func snapshot(folder string, alert AlertData) (string, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%d.jpg", alert.Device, alert.Type, alert.Timestamp.UnixMilli())
	path := filepath.Join(folder, name)
	if !gocv.IMWrite(path, alert.Mat) {
		return "", fmt.Errorf("could not write %s", path)
	}
	return path, nil
}
