package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/session"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/vision"
)

var errReadFailed = errors.New("camera read failed")

// VideoCamera is the lock-guarded capture handle shared with the command
// channel.
type VideoCamera = session.Camera[*gocv.VideoCapture]

// Framer captures, annotates, encodes and sends video frames until ctx is
// cancelled or the session cannot continue. Camera failures are retried
// with the configured policy; exhausting it, or losing the connection, is
// returned as an error.
func Framer(canxCtx context.Context,
	svcs ServicesFactory,
	camera *VideoCamera,
	annotator *Annotator,
	writer *session.Writer,
	sessionID string,
	errorStream chan interface{},
	statsStream chan interface{},
	alertStream chan AlertData) error {
	device := svcs.CfgSvc.GetDeviceName()
	retry := svcs.CfgSvc.GetRetryParameters()
	fps := svcs.CfgSvc.GetCaptureParameters().FPS
	if fps <= 0 {
		fps = 10
	}

	var startTime = time.Now()
	var frames = 0
	var skippedFrames = 0
	var errs = 0

	defer func() {
		uptime := int64(time.Since(startTime).Seconds())
		rate := 0
		if uptime > 0 {
			rate = int(float64(frames) / float64(uptime))
		}
		statsStream <- model.FramerStats{
			Name:          "videoFramer",
			Camera:        camera.Current(),
			Frames:        frames,
			SkippedFrames: skippedFrames,
			Errors:        errs,
			Uptime:        uptime,
			FPS:           rate,
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	capture := session.CaptureRetry{Attempts: retry.Attempts, Backoff: retry.Backoff}
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"video framer context cancelled",
			)
			return nil

		case <-ticker.C:
			img := gocv.NewMat()
			path := camera.Current()
			err := camera.Use(func(p string, webcam *gocv.VideoCapture) error {
				path = p
				if !vision.Read(webcam, &img) {
					return errReadFailed
				}
				return nil
			})
			if err != nil {
				img.Close() // Crucial to close the image to avoid memory leaks
				if errors.Is(err, session.ErrCameraClosed) {
					return nil
				}
				errs++

				wait, exhausted := capture.Failed(err)
				lgr.Logger.Warn(
					"camera unavailable",
					slog.String("camera", path),
					slog.Int("attempt", capture.Failures()),
					slog.Any("error", err),
				)
				if exhausted {
					return model.NewError(model.ResourceError, model.CauseExhausted, "capture", path,
						fmt.Errorf("gave up after %d attempts: %w", capture.Failures(), err))
				}

				// The device is re-opened on the next tick.
				camera.Reset()
				select {
				case <-canxCtx.Done():
					return nil
				case <-time.After(wait):
				}
				continue
			}
			capture.Succeeded()
			frames++

			now := time.Now()
			ann := annotator.Annotate(&img, now)
			raiseAlerts(canxCtx, img, ann, device, sessionID, now, alertStream)

			data, err := vision.EncodeJPEG(img)
			img.Close() // Crucial to close the image to avoid memory leaks
			if err != nil {
				errs++
				skippedFrames++
				errorStream <- model.GenError("device_video_framer",
					err,
					map[string]interface{}{"camera": path},
					"error encoding frame")
				continue
			}

			err = writer.SendFrame(canxCtx, protocol.Frame{Tag: protocol.TagVideo, Payload: data})
			if err != nil {
				if canxCtx.Err() != nil {
					return nil
				}
				if model.IsKind(err, model.ProtocolError) {
					// oversized frame: drop it, keep streaming
					errs++
					skippedFrames++
					continue
				}
				return err
			}
		}
	}
}

// raiseAlerts hands box-count peaks and fresh known-face recognitions to the
// alerter without ever blocking capture.
func raiseAlerts(canxCtx context.Context, img gocv.Mat, ann Annotation, device, sessionID string, now time.Time, alertStream chan AlertData) {
	if alertStream == nil {
		return
	}

	send := func(alert AlertData) {
		alert.Mat = img.Clone()
		alert.Device = device
		alert.SessionID = sessionID
		alert.Timestamp = now
		select {
		case <-canxCtx.Done():
			alert.Mat.Close()
		case alertStream <- alert:
		default:
			alert.Mat.Close()
		}
	}

	if ann.Emitted {
		send(AlertData{Type: model.EventBoxCount, Count: ann.Count})
	}
	if !ann.FreshFaces {
		return
	}
	for _, f := range ann.Faces {
		if f.Label == "" || f.Label == "Unknown" {
			continue
		}
		send(AlertData{Type: model.EventFace, Label: f.Label})
	}
}
