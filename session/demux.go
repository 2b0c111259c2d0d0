package session

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// Decoded is a video frame decoded on the viewer.
type Decoded[I any] struct {
	Image     I
	Timestamp time.Time
}

// ImageCodec decodes VIDEO payloads. Release is called on every image the
// demux drops, including the one returned with a decode error.
type ImageCodec[I any] interface {
	Decode(payload []byte) (I, error)
	Release(img I)
}

// FrameSink records decoded frames. It must not keep img.
type FrameSink[I any] interface {
	Write(img I) error
}

type DemuxCounts struct {
	Video    int
	Audio    int
	Dropped  int
	Invalid  int
	Unknown  int
	Errors   int
	ProcTime time.Duration
}

// Demux reads the device stream and routes its frames. Every decoded video
// frame is recorded; display gets it only if Video has room, the newest frame
// being dropped otherwise. Audio chunks are handed over in order and block
// the demux while the player is behind. Undecodable images and unknown tags
// are skipped; only a stream error ends Run.
type Demux[I any] struct {
	Conn       net.Conn
	MaxPayload int
	// Idle bounds the wait for the next frame; zero waits forever.
	Idle   time.Duration
	Codec  ImageCodec[I]
	Record FrameSink[I]
	Video  chan<- Decoded[I]
	// Audio may be nil, in which case audio chunks are discarded.
	Audio chan<- []byte
	// Invalid is told about every payload that did not decode.
	Invalid func(err error, size int)
	// Latest, when set, keeps the last payload that decoded.
	Latest *LatestFrame

	counts DemuxCounts
}

// Run returns nil once ctx is cancelled, otherwise the stream error.
func (d *Demux[I]) Run(ctx context.Context) error {
	endpoint := ""
	if addr := d.Conn.RemoteAddr(); addr != nil {
		endpoint = addr.String()
	}
	decoder := protocol.NewDecoder(d.Conn, d.MaxPayload, endpoint)

	for {
		if d.Idle > 0 {
			_ = d.Conn.SetReadDeadline(time.Now().Add(d.Idle))
		}
		f, err := decoder.Decode()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch f.Tag {
		case protocol.TagVideo:
			d.video(f.Payload)

		case protocol.TagAudio:
			d.counts.Audio++
			if d.Audio == nil {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			case d.Audio <- f.Payload:
			}

		default:
			d.counts.Unknown++
			lgr.Logger.Warn(
				"unknown frame tag skipped",
				slog.String("tag", string(f.Tag)),
				slog.Int("bytes", len(f.Payload)),
			)
		}
	}
}

func (d *Demux[I]) video(payload []byte) {
	begin := time.Now()
	img, err := d.Codec.Decode(payload)
	if err != nil {
		d.Codec.Release(img)
		// The framing is intact, so the stream goes on.
		d.counts.Invalid++
		d.counts.Errors++
		if d.Invalid != nil {
			d.Invalid(err, len(payload))
		}
		return
	}
	d.counts.Video++
	if d.Latest != nil {
		d.Latest.Set(payload)
	}

	if d.Record != nil {
		if err := d.Record.Write(img); err != nil {
			d.counts.Errors++
			lgr.Logger.Warn(
				"recording write failed",
				slog.Any("error", err),
			)
		}
	}
	d.counts.ProcTime += time.Since(begin)

	select {
	case d.Video <- Decoded[I]{Image: img, Timestamp: begin}:
	default:
		d.counts.Dropped++
		d.Codec.Release(img)
	}
}

// Counts is only meaningful once Run has returned.
func (d *Demux[I]) Counts() DemuxCounts {
	return d.counts
}

// LatestFrame holds the encoded form of the last good video frame.
type LatestFrame struct {
	mu      sync.Mutex
	payload []byte
}

func (l *LatestFrame) Set(payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payload = payload
}

// Get returns nil until a frame has arrived. The slice must not be modified.
func (l *LatestFrame) Get() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payload
}
