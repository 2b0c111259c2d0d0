package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// card 1: Camera [USB Camera], device 0: USB Audio [USB Audio]
var cardLine = regexp.MustCompile(`^card (\d+): [^\[]*\[([^\]]*)\], device (\d+): [^\[]*\[([^\]]*)\]`)

// ParseDevices parses the output of `arecord -l`.
func ParseDevices(out string) []Device {
	var devices []Device
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		m := cardLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		card, _ := strconv.Atoi(m[1])
		dev, _ := strconv.Atoi(m[3])
		devices = append(devices, Device{
			Card:   card,
			Device: dev,
			Name:   m[2] + ": " + m[4],
		})
	}
	return devices
}

func ListCaptureDevices(ctx context.Context) ([]Device, error) {
	out, err := exec.CommandContext(ctx, "arecord", "-l").Output()
	if err != nil {
		return nil, model.NewError(model.ResourceError, model.CauseOther, "list audio devices", "", err)
	}
	return ParseDevices(string(out)), nil
}

// FindCaptureDevice returns the first capture device whose name contains hint.
func FindCaptureDevice(ctx context.Context, hint string) (Device, error) {
	devices, err := ListCaptureDevices(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if strings.Contains(d.Name, hint) {
			return d, nil
		}
	}
	return Device{}, model.NewError(model.ResourceError, model.CauseOther, "find audio device", hint, ErrNoDevice)
}

// OpenCapture streams raw PCM from dev through ffmpeg.
func OpenCapture(ctx context.Context, dev Device, f Format) (Source, error) {
	rate, ch := strconv.Itoa(f.SampleRate), strconv.Itoa(f.Channels)
	return startSource(ctx, f, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "alsa", "-ac", ch, "-ar", rate, "-i", dev.HW(),
		"-f", "s16le", "-ac", ch, "-ar", rate, "-")
}

// OpenPlayback plays raw PCM on the default output through aplay.
func OpenPlayback(ctx context.Context, f Format) (Sink, error) {
	return startSink(ctx, "aplay",
		"-q", "-t", "raw", "-f", "S16_LE",
		"-c", strconv.Itoa(f.Channels), "-r", strconv.Itoa(f.SampleRate), "-")
}

type process struct {
	name string
	cmd  *exec.Cmd
	once sync.Once
	err  error
}

func (p *process) stop(closeIO func() error) error {
	p.once.Do(func() {
		ioErr := closeIO()

		waited := make(chan error, 1)
		go func() { waited <- p.cmd.Wait() }()

		select {
		case <-waited:
		case <-time.After(2 * time.Second):
			_ = p.cmd.Process.Kill()
			<-waited
		}
		p.err = ioErr

		lgr.Logger.Info(
			"audio process stopped",
			slog.String("process", p.name),
		)
	})
	return p.err
}

type source struct {
	process
	stdout io.ReadCloser
	chunk  int
}

func startSource(ctx context.Context, f Format, name string, args ...string) (*source, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, model.NewError(model.ResourceError, model.CauseOther, "open audio capture", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, model.NewError(model.ResourceError, model.CauseOther, "open audio capture", name, err)
	}
	return &source{
		process: process{name: name, cmd: cmd},
		stdout:  stdout,
		chunk:   f.ChunkBytes(),
	}, nil
}

func (s *source) Read(chunk []byte) error {
	if len(chunk) != s.chunk {
		return fmt.Errorf("chunk buffer is %d bytes, want %d", len(chunk), s.chunk)
	}
	_, err := io.ReadFull(s.stdout, chunk)
	if err != nil {
		return model.NewError(model.IOError, model.CauseOther, "read audio", s.name, err)
	}
	return nil
}

func (s *source) Close() error {
	return s.stop(func() error {
		err := s.stdout.Close()
		if errors.Is(err, io.ErrClosedPipe) {
			return nil
		}
		return err
	})
}

type sink struct {
	process
	stdin io.WriteCloser
}

func startSink(ctx context.Context, name string, args ...string) (*sink, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, model.NewError(model.ResourceError, model.CauseOther, "open audio playback", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, model.NewError(model.ResourceError, model.CauseOther, "open audio playback", name, err)
	}
	return &sink{
		process: process{name: name, cmd: cmd},
		stdin:   stdin,
	}, nil
}

func (s *sink) Write(chunk []byte) error {
	if _, err := s.stdin.Write(chunk); err != nil {
		return model.NewError(model.IOError, model.CauseOther, "play audio", s.name, err)
	}
	return nil
}

func (s *sink) Close() error {
	return s.stop(s.stdin.Close)
}
