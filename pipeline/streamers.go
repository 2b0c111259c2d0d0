package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/audio"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/display"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/recorder"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/vision"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/session"
)

// ErrViewerQuit is returned by the renderer when the user closes the window.
var ErrViewerQuit = xerrors.New("viewer quit")

// Recording adapts a recorder to the demux frame sink. Writes after the
// recorder is closed are ignored.
func Recording(rec *recorder.Recorder) session.FrameSink[gocv.Mat] {
	return recordingSink{rec}
}

type recordingSink struct {
	rec *recorder.Recorder
}

func (r recordingSink) Write(img gocv.Mat) error {
	err := r.rec.Write(img)
	if errors.Is(err, recorder.ErrClosed) {
		return nil
	}
	return err
}

type matCodec struct{}

func (matCodec) Decode(payload []byte) (gocv.Mat, error) {
	return vision.DecodeJPEG(payload)
}

func (matCodec) Release(img gocv.Mat) {
	img.Close() // Crucial to close the image to avoid memory leaks
}

// Receiver demultiplexes the stream from the device into display, recording
// and audio until the stream ends or ctx is cancelled. latest may be nil.
func Receiver(canxCtx context.Context,
	svcs ServicesFactory,
	conn net.Conn,
	rec session.FrameSink[gocv.Mat],
	latest *session.LatestFrame,
	videoOut chan FrameData,
	audioOut chan []byte,
	errorStream chan interface{},
	statsStream chan interface{}) error {
	demux := &session.Demux[gocv.Mat]{
		Conn:       conn,
		MaxPayload: svcs.CfgSvc.GetMaxFrameSize(),
		Idle:       svcs.CfgSvc.GetStreamIdleTimeout(),
		Codec:      matCodec{},
		Record:     rec,
		Video:      videoOut,
		Audio:      audioOut,
		Latest:     latest,
		Invalid: func(err error, size int) {
			errorStream <- model.GenError("viewer_receiver",
				err,
				map[string]interface{}{"bytes": size},
				"error decoding video frame")
		},
	}

	var startTime = time.Now()

	defer func() {
		counts := demux.Counts()
		uptime := int64(time.Since(startTime).Seconds())
		rate := 0
		if uptime > 0 {
			rate = int(float64(counts.Video) / float64(uptime))
		}
		var avgProcTime float64
		if counts.Video > 0 {
			avgProcTime = counts.ProcTime.Seconds() / float64(counts.Video)
		}
		statsStream <- model.StreamerStats{
			Name:        "streamReceiver",
			Device:      conn.RemoteAddr().String(),
			Frames:      counts.Video,
			Errors:      counts.Errors,
			Uptime:      uptime,
			FPS:         rate,
			AvgProcTime: avgProcTime,
		}
		lgr.Logger.Info(
			"stream receiver stopped",
			slog.Int("video", counts.Video),
			slog.Int("audio", counts.Audio),
			slog.Int("dropped", counts.Dropped),
			slog.Int("invalid", counts.Invalid),
			slog.Int("unknown", counts.Unknown),
		)
	}()

	return demux.Run(canxCtx)
}

// TemplateImage turns a received frame into an enrollment image of the
// recording size.
func TemplateImage(payload []byte, p config.RecordingParameters) ([]byte, error) {
	if len(payload) == 0 {
		return nil, xerrors.New("no frame received yet")
	}
	img, err := vision.DecodeJPEG(payload)
	defer img.Close()
	if err != nil {
		return nil, err
	}
	fitted, err := vision.Fit(img, p.Width, p.Height)
	defer fitted.Close()
	if err != nil {
		return nil, err
	}
	return vision.EncodeJPEG(fitted)
}

// Renderer shows frames until ctx is cancelled or the user quits. It must run
// on the goroutine that owns the window.
func Renderer(canxCtx context.Context,
	disp display.IService,
	in chan FrameData,
	statsStream chan interface{}) error {
	var startTime = time.Now()
	var frames = 0

	defer func() {
		uptime := int64(time.Since(startTime).Seconds())
		rate := 0
		if uptime > 0 {
			rate = int(float64(frames) / float64(uptime))
		}
		statsStream <- model.StreamerStats{
			Name:   "videoRenderer",
			Frames: frames,
			Uptime: uptime,
			FPS:    rate,
		}
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"renderer context cancelled",
			)
			for {
				select {
				case f := <-in:
					f.Image.Close()
				default:
					return nil
				}
			}

		case f := <-in:
			keep := disp.Show(f.Image)
			f.Image.Close() // Crucial to close the image to avoid memory leaks
			frames++
			if !keep {
				return ErrViewerQuit
			}
		}
	}
}

// Player writes audio chunks to sink in arrival order.
func Player(canxCtx context.Context,
	sink audio.Sink,
	in chan []byte,
	statsStream chan interface{}) error {
	var startTime = time.Now()
	var frames = 0
	var errs = 0

	defer func() {
		statsStream <- model.StreamerStats{
			Name:   "audioPlayer",
			Frames: frames,
			Errors: errs,
			Uptime: int64(time.Since(startTime).Seconds()),
		}
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"audio player context cancelled",
			)
			return nil

		case chunk := <-in:
			if err := sink.Write(chunk); err != nil {
				if canxCtx.Err() != nil {
					return nil
				}
				errs++
				return err
			}
			frames++
		}
	}
}
