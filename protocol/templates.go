package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
)

// Enrollment: TOTAL_LEN(4, BE) | NAME_LEN(2, BE) | NAME | IMAGE
// Deletion:   NAME_LEN(2, BE) | NAME
const DefaultMaxEnrollSize = 16 * 1024 * 1024

type EnrollRequest struct {
	Name  string
	Image []byte
}

type DeleteRequest struct {
	Name string
}

func EncodeEnroll(req EnrollRequest) ([]byte, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, protocolErr("encode enroll", err)
	}
	if len(req.Image) == 0 {
		return nil, protocolErr("encode enroll", fmt.Errorf("%w: empty image", ErrCorrupt))
	}
	total := 2 + len(req.Name) + len(req.Image)
	if uint64(total) > math.MaxUint32 {
		return nil, protocolErr("encode enroll", fmt.Errorf("%w: request of %d bytes too large", ErrCorrupt, total))
	}

	buf := make([]byte, 0, 4+total)
	buf = binary.BigEndian.AppendUint32(buf, uint32(total))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(req.Name)))
	buf = append(buf, req.Name...)
	buf = append(buf, req.Image...)
	return buf, nil
}

// DecodeEnroll reads one enrollment request and checks that the declared total
// equals name_length + len(image) + 2. Missing bytes, trailing bytes, an empty
// image or an unsafe name are all protocol errors.
func DecodeEnroll(r io.Reader, maxSize int) (EnrollRequest, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxEnrollSize
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return EnrollRequest{}, protocolErr("read enroll length", fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	total := int(binary.BigEndian.Uint32(hdr[:]))
	if total < 2 || total > maxSize {
		return EnrollRequest{}, protocolErr("read enroll length", fmt.Errorf("%w: invalid total length %d", ErrCorrupt, total))
	}

	body := make([]byte, total)
	n, err := io.ReadFull(r, body)
	if err != nil {
		return EnrollRequest{}, protocolErr("read enroll body",
			fmt.Errorf("%w: total length %d but only %d bytes received", ErrCorrupt, total, n))
	}

	// Anything after the declared body means the total was understated.
	var extra [1]byte
	if m, _ := r.Read(extra[:]); m > 0 {
		return EnrollRequest{}, protocolErr("read enroll body",
			fmt.Errorf("%w: trailing bytes after declared total length %d", ErrCorrupt, total))
	}

	nameLen := int(binary.BigEndian.Uint16(body[:2]))
	if 2+nameLen > total {
		return EnrollRequest{}, protocolErr("read enroll name",
			fmt.Errorf("%w: name length %d exceeds total length %d", ErrCorrupt, nameLen, total))
	}

	req := EnrollRequest{
		Name:  string(body[2 : 2+nameLen]),
		Image: body[2+nameLen:],
	}
	if err := ValidateName(req.Name); err != nil {
		return EnrollRequest{}, protocolErr("read enroll name", err)
	}
	if len(req.Image) == 0 {
		return EnrollRequest{}, protocolErr("read enroll image", fmt.Errorf("%w: empty image", ErrCorrupt))
	}
	return req, nil
}

func EncodeDelete(req DeleteRequest) ([]byte, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, protocolErr("encode delete", err)
	}
	buf := make([]byte, 0, 2+len(req.Name))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(req.Name)))
	buf = append(buf, req.Name...)
	return buf, nil
}

func DecodeDelete(r io.Reader) (DeleteRequest, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return DeleteRequest{}, protocolErr("read delete length", fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	name := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, name); err != nil {
		return DeleteRequest{}, protocolErr("read delete name", fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	req := DeleteRequest{Name: string(name)}
	if err := ValidateName(req.Name); err != nil {
		return DeleteRequest{}, protocolErr("read delete name", err)
	}
	return req, nil
}

// ValidateName accepts names that are safe to use as a file stem.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrCorrupt)
	case len(name) > math.MaxUint16:
		return fmt.Errorf("%w: name longer than %d bytes", ErrCorrupt, math.MaxUint16)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: name is not valid UTF-8", ErrCorrupt)
	case name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: name %q is not a valid template name", ErrCorrupt, name)
	}
	return nil
}

func protocolErr(op string, err error) error {
	return model.NewError(model.ProtocolError, model.CauseCorrupt, op, "", err)
}
