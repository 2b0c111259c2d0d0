package audio

import (
	"errors"
	"fmt"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
)

var ErrNoDevice = errors.New("no matching audio capture device")

// Format is interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate  int
	Channels    int
	ChunkFrames int
}

func FormatFrom(p config.AudioParameters) Format {
	return Format{
		SampleRate:  p.SampleRate,
		Channels:    p.Channels,
		ChunkFrames: p.ChunkFrames,
	}
}

// ChunkBytes is the size of one AUDIO frame payload.
func (f Format) ChunkBytes() int {
	return f.ChunkFrames * f.Channels * 2
}

// Device is an ALSA capture device as listed by `arecord -l`.
type Device struct {
	Card   int
	Device int
	// Name is "<card name>: <device name>".
	Name string
}

func (d Device) HW() string {
	return fmt.Sprintf("plughw:%d,%d", d.Card, d.Device)
}

// Source yields fixed-size PCM chunks.
type Source interface {
	Read(chunk []byte) error
	Close() error
}

// Sink plays PCM chunks.
type Sink interface {
	Write(chunk []byte) error
	Close() error
}
