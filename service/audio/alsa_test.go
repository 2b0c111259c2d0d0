package audio

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
)

const arecordOutput = `**** List of CAPTURE Hardware Devices ****
card 0: PCH [HDA Intel PCH], device 0: ALC3246 Analog [ALC3246 Analog]
  Subdevices: 1/1
  Subdevice #0: subdevice #0
card 2: Camera [USB Camera], device 0: USB Audio [USB Audio]
  Subdevices: 1/1
  Subdevice #0: subdevice #0
`

func TestParseDevices(t *testing.T) {
	devices := ParseDevices(arecordOutput)
	if len(devices) != 2 {
		t.Fatalf("devices %+v", devices)
	}
	usb := devices[1]
	if usb.Card != 2 || usb.Device != 0 || usb.Name != "USB Camera: USB Audio" || usb.HW() != "plughw:2,0" {
		t.Fatalf("usb %+v", usb)
	}
	if len(ParseDevices("arecord: no soundcards found...")) != 0 {
		t.Fatal("parsed garbage")
	}
}

func TestChunkBytes(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, ChunkFrames: 1024}
	if f.ChunkBytes() != 4096 {
		t.Fatalf("chunk %d", f.ChunkBytes())
	}
}

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestSourceReadsWholeChunks(t *testing.T) {
	requireTool(t, "head")
	f := Format{SampleRate: 8000, Channels: 1, ChunkFrames: 512}

	src, err := startSource(context.Background(), f, "head", "-c", "2048", "/dev/zero")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	chunk := make([]byte, f.ChunkBytes())
	for i := 0; i < 2; i++ {
		if err := src.Read(chunk); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}
	err = src.Read(chunk)
	if !model.IsKind(err, model.IOError) || !errors.Is(err, io.EOF) {
		t.Fatalf("after end: %v", err)
	}
	if err := src.Read(make([]byte, 3)); err == nil {
		t.Fatal("short buffer accepted")
	}
}

func TestSinkWritesAndCloses(t *testing.T) {
	requireTool(t, "sh")
	out := filepath.Join(t.TempDir(), "pcm")

	snk, err := startSink(context.Background(), "sh", "-c", "cat > "+out)
	if err != nil {
		t.Fatal(err)
	}
	if err := snk.Write(make([]byte, 4096)); err != nil {
		t.Fatal(err)
	}
	if err := snk.Close(); err != nil {
		t.Fatal(err)
	}
	if err := snk.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
