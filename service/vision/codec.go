package vision

import (
	"errors"

	"gocv.io/x/gocv"
)

var ErrEmptyImage = errors.New("empty image")

// EncodeJPEG returns a copy of the JPEG encoding of img.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// DecodeJPEG decodes a colour image. The caller owns the returned Mat.
func DecodeJPEG(data []byte) (gocv.Mat, error) {
	return decode(data, gocv.IMReadColor)
}

func decodeGray(data []byte) (gocv.Mat, error) {
	return decode(data, gocv.IMReadGrayScale)
}

func decode(data []byte, flags gocv.IMReadFlag) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrEmptyImage
	}
	img, err := gocv.IMDecode(data, flags)
	if err != nil {
		return img, err
	}
	if img.Empty() {
		return img, ErrEmptyImage
	}
	return img, nil
}
