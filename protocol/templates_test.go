package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
)

func rawEnroll(total uint32, nameLen uint16, name string, image []byte) []byte {
	buf := binary.BigEndian.AppendUint32(nil, total)
	buf = binary.BigEndian.AppendUint16(buf, nameLen)
	buf = append(buf, name...)
	return append(buf, image...)
}

func TestEnrollRoundTrip(t *testing.T) {
	want := EnrollRequest{Name: "张三", Image: []byte{0xFF, 0xD8, 1, 2, 3, 0xFF, 0xD9}}
	buf, err := EncodeEnroll(want)
	if err != nil {
		t.Fatal(err)
	}
	if total := binary.BigEndian.Uint32(buf); int(total) != len(want.Name)+len(want.Image)+2 {
		t.Fatalf("total length %d", total)
	}

	got, err := DecodeEnroll(bytes.NewReader(buf), 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != want.Name || !bytes.Equal(got.Image, want.Image) {
		t.Fatalf("got %+v", got)
	}
}

func TestEnrollLengthMismatch(t *testing.T) {
	image := []byte("jpegbytes")
	name := "alice"
	good := uint32(len(name) + len(image) + 2)

	cases := map[string][]byte{
		"total overstated":  rawEnroll(good+5, uint16(len(name)), name, image),
		"total understated": rawEnroll(good-3, uint16(len(name)), name, image),
		"name overruns":     rawEnroll(good, uint16(len(name)+len(image)+1), name, image),
		"total below two":   rawEnroll(1, 0, "", nil),
		"header only":       {0, 0},
		"empty image":       rawEnroll(uint32(len(name)+2), uint16(len(name)), name, nil),
		"empty name":        rawEnroll(uint32(len(image)+2), 0, "", image),
		"path in name":      rawEnroll(uint32(len("../x")+len(image)+2), 4, "../x", image),
	}
	for label, wire := range cases {
		_, err := DecodeEnroll(bytes.NewReader(wire), 0)
		if !model.IsKind(err, model.ProtocolError) || !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: got %v, want protocol error", label, err)
		}
	}
}

func TestEnrollRespectsMaxSize(t *testing.T) {
	buf, _ := EncodeEnroll(EnrollRequest{Name: "bob", Image: make([]byte, 100)})
	if _, err := DecodeEnroll(bytes.NewReader(buf), 50); !model.IsKind(err, model.ProtocolError) {
		t.Fatalf("got %v", err)
	}
}

func TestDeleteRoundTrip(t *testing.T) {
	buf, err := EncodeDelete(DeleteRequest{Name: "carol"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeDelete(bytes.NewReader(buf))
	if err != nil || got.Name != "carol" {
		t.Fatalf("got %+v, %v", got, err)
	}

	if _, err := DecodeDelete(bytes.NewReader(buf[:4])); !model.IsKind(err, model.ProtocolError) {
		t.Fatalf("truncated name: got %v", err)
	}
	if _, err := DecodeDelete(bytes.NewReader(nil)); !model.IsKind(err, model.ProtocolError) {
		t.Fatalf("empty: got %v", err)
	}
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"alice", "Bob Smith", "李四", "a.b"} {
		if err := ValidateName(ok); err != nil {
			t.Fatalf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "x\x00y", string([]byte{0xff, 0xfe})} {
		if err := ValidateName(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}
