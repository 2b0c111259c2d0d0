package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
)

// Wire layout of a stream frame: TAG(5 ASCII) | LEN(4, big-endian) | PAYLOAD(LEN).
const (
	TagSize    = 5
	LengthSize = 4
	HeaderSize = TagSize + LengthSize

	DefaultMaxPayload = 5 * 1024 * 1024
)

type Tag string

const (
	TagVideo Tag = "VIDEO"
	TagAudio Tag = "AUDIO"
)

func (t Tag) Known() bool {
	return t == TagVideo || t == TagAudio
}

var (
	ErrConnectionLost = xerrors.New("connection lost")
	ErrCorrupt        = xerrors.New("stream corrupted")
)

type Frame struct {
	Tag     Tag
	Payload []byte
}

// AppendFrame appends the encoded frame to dst. The payload bound is the same
// one the receiver enforces, so an oversized frame never reaches the wire.
func AppendFrame(dst []byte, f Frame, maxPayload int) ([]byte, error) {
	if len(f.Tag) != TagSize {
		return dst, model.NewError(model.ProtocolError, model.CauseCorrupt, "encode frame", "",
			fmt.Errorf("%w: tag %q is not %d bytes", ErrCorrupt, f.Tag, TagSize))
	}
	if err := checkLength(len(f.Payload), maxPayload); err != nil {
		return dst, model.NewError(model.ProtocolError, model.CauseCorrupt, "encode frame", "", err)
	}

	dst = append(dst, f.Tag...)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Payload)))
	dst = append(dst, f.Payload...)
	return dst, nil
}

// WriteFrame writes tag, length and payload with a single Write call.
func WriteFrame(w io.Writer, f Frame, maxPayload int) error {
	buf, err := AppendFrame(make([]byte, 0, HeaderSize+len(f.Payload)), f, maxPayload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func checkLength(n, maxPayload int) error {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if n <= 0 || n > maxPayload {
		return fmt.Errorf("%w: invalid frame length %d (max %d)", ErrCorrupt, n, maxPayload)
	}
	return nil
}

// Decoder reads frames from a stream connection. It never resynchronizes:
// after an error the caller must stop the session.
type Decoder struct {
	r          io.Reader
	maxPayload int
	endpoint   string
	hdr        [HeaderSize]byte
}

func NewDecoder(r io.Reader, maxPayload int, endpoint string) *Decoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Decoder{
		r:          r,
		maxPayload: maxPayload,
		endpoint:   endpoint,
	}
}

// Decode returns the next frame. Frames with an unknown tag are returned as is
// so the caller can log and skip them.
func (d *Decoder) Decode() (Frame, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:TagSize]); err != nil {
		return Frame{}, d.lost("read tag", err)
	}
	if _, err := io.ReadFull(d.r, d.hdr[TagSize:]); err != nil {
		return Frame{}, d.lost("read length", err)
	}

	n := int(binary.BigEndian.Uint32(d.hdr[TagSize:]))
	if err := checkLength(n, d.maxPayload); err != nil {
		return Frame{}, model.NewError(model.ProtocolError, model.CauseCorrupt, "read length", d.endpoint, err)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return Frame{}, d.lost("read payload", err)
	}

	return Frame{
		Tag:     Tag(d.hdr[:TagSize]),
		Payload: payload,
	}, nil
}

func (d *Decoder) lost(op string, err error) error {
	cause := model.CauseLost
	if isTimeout(err) {
		cause = model.CauseTimeout
	}
	return model.NewError(model.ConnectionError, cause, op, d.endpoint, fmt.Errorf("%w: %v", ErrConnectionLost, err))
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
